// Package hls implements the HLS Playlist Reader (spec.md §4.4): one
// instance per Live Caption Worker, never shared, resolving master
// playlists to their first media variant and yielding only
// not-yet-seen segment URIs.
package hls

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jihoonkim/legisub/pkg/httpclient"
)

const masterPlaylistTag = "#EXT-X-STREAM-INF"

// Reader tracks one playlist's segment cursor. Not safe for concurrent use
// by design (spec.md §3 "Segment Cursor" is owned by a single reader).
type Reader struct {
	client *httpclient.Client

	resolvedMediaURL string
	seen             map[string]struct{}
}

// New constructs a Reader bound to client for outbound fetches.
func New(client *httpclient.Client) *Reader {
	return &Reader{
		client: client,
		seen:   make(map[string]struct{}),
	}
}

// FetchNewSegments fetches playlistURL, resolves master→media on first call
// if needed, and returns the ordered list of segment URIs not previously
// seen. Master resolution is sticky across calls.
func (r *Reader) FetchNewSegments(ctx context.Context, playlistURL string) ([]string, error) {
	fetchURL := playlistURL
	if r.resolvedMediaURL != "" {
		fetchURL = r.resolvedMediaURL
	}

	body, err := r.fetchText(ctx, fetchURL)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist %s: %w", fetchURL, err)
	}

	if r.resolvedMediaURL == "" && isMasterPlaylist(body) {
		variantURI, err := firstVariantURI(body)
		if err != nil {
			return nil, fmt.Errorf("resolving master playlist %s: %w", fetchURL, err)
		}
		mediaURL, err := resolveURI(fetchURL, variantURI)
		if err != nil {
			return nil, fmt.Errorf("resolving variant URL: %w", err)
		}
		r.resolvedMediaURL = mediaURL

		body, err = r.fetchText(ctx, mediaURL)
		if err != nil {
			return nil, fmt.Errorf("fetching media playlist %s: %w", mediaURL, err)
		}
	}

	base := fetchURL
	if r.resolvedMediaURL != "" {
		base = r.resolvedMediaURL
	}

	var fresh []string
	for _, line := range splitLines(body) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		segURL, err := resolveURI(base, line)
		if err != nil {
			continue
		}
		if _, ok := r.seen[segURL]; ok {
			continue
		}
		r.seen[segURL] = struct{}{}
		fresh = append(fresh, segURL)
	}
	return fresh, nil
}

// Reset clears the seen-set and the resolved media URL, so the next call
// re-resolves the master playlist from scratch.
func (r *Reader) Reset() {
	r.resolvedMediaURL = ""
	r.seen = make(map[string]struct{})
}

func (r *Reader) fetchText(ctx context.Context, playlistURL string) (string, error) {
	resp, err := r.client.Get(ctx, playlistURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("playlist fetch returned %d", resp.StatusCode)
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func isMasterPlaylist(body string) bool {
	return strings.Contains(body, masterPlaylistTag)
}

// firstVariantURI returns the URI line immediately following the first
// EXT-X-STREAM-INF tag.
func firstVariantURI(body string) (string, error) {
	lines := splitLines(body)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), masterPlaylistTag) {
			for j := i + 1; j < len(lines); j++ {
				candidate := strings.TrimSpace(lines[j])
				if candidate == "" || strings.HasPrefix(candidate, "#") {
					continue
				}
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("no variant URI found after %s tag", masterPlaylistTag)
}

func resolveURI(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}

func splitLines(body string) []string {
	return strings.Split(body, "\n")
}
