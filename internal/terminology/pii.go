package terminology

import (
	"regexp"
	"sort"
	"strings"
)

// phonePattern matches Korean landline/mobile numbers: 010-1234-5678,
// 02-123-4567, 031-1234-5678, with optional hyphen/space separators.
var phonePattern = regexp.MustCompile(`(0\d{1,2})[- ]?(\d{3,4})[- ]?(\d{4})`)

// rrnPattern matches Korean resident-registration-number-shaped strings:
// 900101-1234567.
var rrnPattern = regexp.MustCompile(`(\d{6})[- ]?(\d{7})`)

// emailPattern matches a standard email address shape.
var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// PiiMatch describes one detected span of personally identifying text.
type PiiMatch struct {
	Type     string
	Original string
	Masked   string
	Start    int
	End      int
}

// DetectPII finds resident-registration-number, phone, and email shaped
// substrings in text. Resident-registration-number matches take priority
// over overlapping phone matches, matching the original's ordering.
func DetectPII(text string) []PiiMatch {
	var matches []PiiMatch

	for _, loc := range rrnPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		g1 := text[loc[2]:loc[3]]
		matches = append(matches, PiiMatch{
			Type:     "rrn",
			Original: text[start:end],
			Masked:   g1 + "-*******",
			Start:    start,
			End:      end,
		})
	}

	for _, loc := range phonePattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		if overlapsExisting(matches, start, end) {
			continue
		}
		g3 := text[loc[6]:loc[7]]
		matches = append(matches, PiiMatch{
			Type:     "phone",
			Original: text[start:end],
			Masked:   "***-****-" + g3,
			Start:    start,
			End:      end,
		})
	}

	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		matches = append(matches, PiiMatch{
			Type:     "email",
			Original: text[start:end],
			Masked:   maskEmail(text[start:end]),
			Start:    start,
			End:      end,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })
	return matches
}

func overlapsExisting(matches []PiiMatch, start, end int) bool {
	for _, m := range matches {
		if m.Start <= start && start < m.End {
			return true
		}
	}
	return false
}

func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	runes := []rune(local)
	var maskedLocal string
	switch {
	case len(runes) <= 2:
		maskedLocal = strings.Repeat("*", len(runes))
	default:
		maskedLocal = string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
	}
	return maskedLocal + "@" + domain
}

// MaskPII replaces every detected PII span in text with its masked form.
// Spans are applied right-to-left so earlier offsets stay valid.
func MaskPII(text string) string {
	matches := DetectPII(text)
	if len(matches) == 0 {
		return text
	}
	out := text
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		out = out[:m.Start] + m.Masked + out[m.End:]
	}
	return out
}
