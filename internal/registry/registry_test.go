package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jihoonkim/legisub/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "file::memory:?cache=shared"
	cfg.Channels = []config.ChannelConfig{
		{ID: "ch14", DisplayName: "National Assembly TV", UpstreamCode: "A011", PlaylistURL: "https://example.invalid/ch14.m3u8"},
	}
	return cfg
}

func TestNewFromConfig_WiresAllSingletons(t *testing.T) {
	app, err := NewFromConfig(testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, app)

	require.NotNil(t, app.Logger)
	require.NotNil(t, app.DB)
	require.NotNil(t, app.Store)
	require.NotNil(t, app.Hub)
	require.NotNil(t, app.Poller)
	require.NotNil(t, app.Workers)
	require.NotNil(t, app.Supervisor)
	require.NotNil(t, app.VOD)
	require.NotNil(t, app.Server)

	channels := app.Catalog.List()
	require.Len(t, channels, 1)
	require.Equal(t, "ch14", channels[0].ID)
}

func TestNewFromConfig_RefinerDisabledWithoutRewriterURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Refiner.RewriterURL = ""

	app, err := NewFromConfig(cfg)
	require.NoError(t, err)
	require.Nil(t, app.Refiner)
}

func TestNewFromConfig_RefinerEnabledWithRewriterURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Refiner.RewriterURL = "https://rewriter.example.invalid"

	app, err := NewFromConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Refiner)
}
