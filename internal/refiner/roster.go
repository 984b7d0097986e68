package refiner

// Roster maps an opaque diarization speaker index to a known real name,
// configuration-driven per DESIGN.md's resolution of spec.md §9's open
// question ("the refiner's roster of real speaker names is hardcoded in
// the source; in a rewrite it should become configuration-driven").
type Roster map[string]string

// Map returns r as a plain map for JSON embedding, or nil if empty so the
// rewrite request omits the field entirely.
func (r Roster) Map() map[string]string {
	if len(r) == 0 {
		return nil
	}
	return map[string]string(r)
}
