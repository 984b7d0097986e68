package hls

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihoonkim/legisub/pkg/httpclient"
)

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000
high/index.m3u8
`

func mediaPlaylist(segments ...string) string {
	var sb strings.Builder
	sb.WriteString("#EXTM3U\n#EXT-X-TARGETDURATION:6\n")
	for _, s := range segments {
		sb.WriteString("#EXTINF:6.0,\n")
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestReader_FetchNewSegments_ResolvesMasterOnce(t *testing.T) {
	var mediaCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/master.m3u8":
			_, _ = w.Write([]byte(masterPlaylist))
		case "/low/index.m3u8":
			mediaCalls++
			_, _ = w.Write([]byte(mediaPlaylist("seg1.ts", "seg2.ts")))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r := New(httpclient.NewWithDefaults())
	segs, err := r.FetchNewSegments(t.Context(), srv.URL+"/master.m3u8")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, srv.URL+"/low/seg1.ts", segs[0])
	assert.Equal(t, srv.URL+"/low/seg2.ts", segs[1])

	// Second call should hit the resolved media playlist directly, not the
	// master again.
	_, err = r.FetchNewSegments(t.Context(), srv.URL+"/master.m3u8")
	require.NoError(t, err)
	assert.Equal(t, 2, mediaCalls)
}

func TestReader_FetchNewSegments_OnlyReturnsUnseen(t *testing.T) {
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		if call == 1 {
			_, _ = w.Write([]byte(mediaPlaylist("seg1.ts", "seg2.ts")))
		} else {
			_, _ = w.Write([]byte(mediaPlaylist("seg1.ts", "seg2.ts", "seg3.ts")))
		}
	}))
	defer srv.Close()

	r := New(httpclient.NewWithDefaults())
	first, err := r.FetchNewSegments(t.Context(), srv.URL+"/index.m3u8")
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := r.FetchNewSegments(t.Context(), srv.URL+"/index.m3u8")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, srv.URL+"/seg3.ts", second[0])
}

func TestReader_FetchNewSegments_TransientErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := New(httpclient.NewWithDefaults())
	_, err := r.FetchNewSegments(t.Context(), srv.URL+"/index.m3u8")
	assert.Error(t, err)
}

func TestReader_Reset_ClearsSeenSetAndMediaURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/master.m3u8":
			_, _ = w.Write([]byte(masterPlaylist))
		default:
			_, _ = w.Write([]byte(mediaPlaylist("seg1.ts")))
		}
	}))
	defer srv.Close()

	r := New(httpclient.NewWithDefaults())
	_, err := r.FetchNewSegments(t.Context(), srv.URL+"/master.m3u8")
	require.NoError(t, err)
	require.NotEmpty(t, r.resolvedMediaURL)

	r.Reset()
	assert.Empty(t, r.resolvedMediaURL)
	assert.Empty(t, r.seen)

	segs, err := r.FetchNewSegments(t.Context(), srv.URL+"/master.m3u8")
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}
