package catalog_test

import (
	"testing"

	"github.com/jihoonkim/legisub/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChannels() []catalog.Channel {
	return []catalog.Channel{
		{ID: "ch14", DisplayName: "National Assembly TV", UpstreamCode: "A011", PlaylistURL: "https://origin.example/a011/master.m3u8"},
		{ID: "ch8", DisplayName: "Budget Committee", UpstreamCode: "A022", PlaylistURL: "https://origin.example/a022/master.m3u8"},
	}
}

func TestCatalogByID(t *testing.T) {
	c := catalog.New(testChannels())

	ch, ok := c.ByID("ch14")
	require.True(t, ok)
	assert.Equal(t, "A011", ch.UpstreamCode)

	_, ok = c.ByID("unknown")
	assert.False(t, ok)
}

func TestCatalogByUpstreamCode(t *testing.T) {
	c := catalog.New(testChannels())

	ch, ok := c.ByUpstreamCode("A022")
	require.True(t, ok)
	assert.Equal(t, "ch8", ch.ID)

	_, ok = c.ByUpstreamCode("ZZZZ")
	assert.False(t, ok)
}

func TestCatalogList(t *testing.T) {
	c := catalog.New(testChannels())
	assert.Len(t, c.List(), 2)
}
