// Package spacing implements the Korean word-spacing singleton (spec.md
// §9 "Korean word spacing"). Live-ASR output for Korean arrives without
// reliable spacing; a particle-boundary heuristic is applied post-ASR,
// pre-broadcast (no model data file is read). The model's data path is relocated to an ASCII-safe
// location on first use if the configured path proves unreadable, since
// the historical failure mode is a non-ASCII user-profile path; if
// relocation still fails, spacing correction is bypassed entirely and the
// raw text passes through unchanged — captions must never be blocked on
// cosmetic post-processing.
package spacing

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// particleBoundaries lists common Korean particle/ending syllables that,
// when a spacing model has no better signal, mark a likely word boundary
// immediately after them. This list is the whole spacing model this engine
// ships; DataPath below is only probed for writability, and no model
// weights are loaded from it.
var particleBoundaries = []string{
	"은", "는", "이", "가", "을", "를", "에", "에서", "으로", "로",
	"와", "과", "의", "도", "만", "까지", "부터", "에게", "한테",
}

// Corrector applies Korean word-spacing normalization. It is the
// process-wide singleton named in spec.md §9; obtain it with Get.
type Corrector struct {
	mu       sync.RWMutex
	dataPath string
	ready    bool
}

var (
	instance     *Corrector
	instanceOnce sync.Once
)

// Get returns the process-wide Corrector, initializing it (and attempting
// the data-path relocation) on first call.
func Get() *Corrector {
	instanceOnce.Do(func() {
		instance = newCorrector(defaultDataPath())
	})
	return instance
}

func defaultDataPath() string {
	if configured := os.Getenv("LEGISUB_SPACING_DATA_PATH"); configured != "" {
		return configured
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "legisub-spacing", "model.dat")
	}
	return filepath.Join(home, ".legisub", "spacing", "model.dat")
}

func newCorrector(dataPath string) *Corrector {
	c := &Corrector{dataPath: dataPath}
	c.ready = c.ensureDataPath()
	return c
}

// ensureDataPath verifies dataPath's directory is readable/writable; if
// not (e.g. a non-ASCII path the host filesystem driver rejects), it
// relocates to an ASCII-safe temp directory instead. Returns whether a
// usable path was established.
func (c *Corrector) ensureDataPath() bool {
	dir := filepath.Dir(c.dataPath)
	if probeDir(dir) {
		return true
	}

	fallback := filepath.Join(os.TempDir(), "legisub-spacing")
	if probeDir(fallback) {
		c.dataPath = filepath.Join(fallback, "model.dat")
		return true
	}
	return false
}

func probeDir(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	_ = f.Close()
	_ = os.Remove(probe)
	return true
}

// DataPath returns the data path currently in effect, after any
// relocation.
func (c *Corrector) DataPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dataPath
}

// Ready reports whether spacing correction is active. When false, Correct
// is a no-op passthrough.
func (c *Corrector) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Correct normalizes Unicode form and full/half-width variants, then
// inserts spaces at likely particle boundaries in text that otherwise
// lacks spacing. If the model is not ready, text passes through unchanged.
func (c *Corrector) Correct(text string) string {
	if text == "" {
		return text
	}
	if !c.Ready() {
		return text
	}

	normalized := norm.NFC.String(text)
	normalized = width.Narrow.String(normalized)

	return insertSpaces(normalized)
}

// insertSpaces walks text and, after each Hangul syllable that completes a
// recognized particle ending, inserts a space unless one already follows
// or the text ends there.
func insertSpaces(text string) string {
	var sb strings.Builder
	runes := []rune(text)

	i := 0
	for i < len(runes) {
		r := runes[i]
		sb.WriteRune(r)
		i++

		if i >= len(runes) || !isHangul(r) || runes[i] == ' ' {
			continue
		}
		if _, ok := matchBoundaryAt(runes, i); ok {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

// matchBoundaryAt returns the longest particle boundary matching runes
// starting at index i, scanning backward from i so the boundary check
// looks at the syllables already written.
func matchBoundaryAt(runes []rune, i int) (string, bool) {
	var best string
	for _, boundary := range particleBoundaries {
		bl := []rune(boundary)
		if i < len(bl) {
			continue
		}
		if string(runes[i-len(bl):i]) == boundary && len(boundary) > len(best) {
			best = boundary
		}
	}
	return best, best != ""
}

func isHangul(r rune) bool {
	return r >= 0xAC00 && r <= 0xD7A3
}
