// Package catalog provides the static, read-only channel table for the
// legislative assembly broadcast channels this engine ingests.
package catalog

// Channel describes one upstream broadcast channel. The set of channels is
// fixed for the process lifetime; there is no create/update/delete surface.
type Channel struct {
	// ID is this engine's own identifier for the channel (used as the
	// Subscriber Hub room id and the Live Caption Worker key).
	ID string
	// DisplayName is the human-readable channel name.
	DisplayName string
	// UpstreamCode is the broadcaster's own channel code, used to join
	// against the live-status feed (spec.md §4.3).
	UpstreamCode string
	// PlaylistURL is the HLS master or media playlist URL for this channel.
	PlaylistURL string
}

// Catalog is a constant-time lookup table over a fixed channel list.
type Catalog struct {
	byID       map[string]Channel
	byUpstream map[string]Channel
	ordered    []Channel
}

// New builds a Catalog from a fixed channel list. Duplicate ids or upstream
// codes silently keep the last entry, matching a static table with no
// validation surface of its own.
func New(channels []Channel) *Catalog {
	c := &Catalog{
		byID:       make(map[string]Channel, len(channels)),
		byUpstream: make(map[string]Channel, len(channels)),
		ordered:    append([]Channel(nil), channels...),
	}
	for _, ch := range channels {
		c.byID[ch.ID] = ch
		c.byUpstream[ch.UpstreamCode] = ch
	}
	return c
}

// List returns every channel in the catalog, in declaration order.
func (c *Catalog) List() []Channel {
	return append([]Channel(nil), c.ordered...)
}

// ByID looks up a channel by this engine's id. The bool reports whether the
// id is known; an unknown id is a lookup miss, not an error (spec.md §4.1).
func (c *Catalog) ByID(id string) (Channel, bool) {
	ch, ok := c.byID[id]
	return ch, ok
}

// ByUpstreamCode looks up a channel by the broadcaster's upstream code.
func (c *Catalog) ByUpstreamCode(code string) (Channel, bool) {
	ch, ok := c.byUpstream[code]
	return ch, ok
}
