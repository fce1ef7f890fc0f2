package search

import (
	"html"
	"strings"
)

// highlightWindow is the number of runes kept on each side of the
// first match when centering a snippet (spec.md §4.4: "bounded
// window").
const highlightWindow = 80

const (
	markOpen  = "<mark>"
	markClose = "</mark>"
)

// Highlight extracts a bounded snippet from text centered on the
// first case-insensitive occurrence of any term, HTML-escapes it, and
// wraps exact (case-insensitive) matches of the supplied terms in
// <mark> tags. Terms shorter than minTermLen are ignored, mirroring
// the planner's own term filter. If no term matches, the first
// highlightWindow*2 runes of the escaped text are returned unmarked.
func Highlight(text string, terms []string) string {
	runes := []rune(text)
	lower := strings.ToLower(text)

	usable := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.Trim(t, `"`)
		if len([]rune(t)) >= minTermLen {
			usable = append(usable, t)
		}
	}

	start, end := 0, len(runes)
	if len(runes) > highlightWindow*2 {
		matchAt := firstMatchRuneIndex(lower, usable)
		if matchAt < 0 {
			matchAt = 0
		}
		start = matchAt - highlightWindow
		if start < 0 {
			start = 0
		}
		end = start + highlightWindow*2
		if end > len(runes) {
			end = len(runes)
			start = end - highlightWindow*2
			if start < 0 {
				start = 0
			}
		}
	}

	window := string(runes[start:end])
	escaped := wrapMatches(window, usable)

	prefix, suffix := "", ""
	if start > 0 {
		prefix = "…"
	}
	if end < len(runes) {
		suffix = "…"
	}
	return prefix + escaped + suffix
}

// firstMatchRuneIndex returns the rune offset of the first
// case-insensitive occurrence of any term in lower, or -1.
func firstMatchRuneIndex(lower string, terms []string) int {
	best := -1
	for _, term := range terms {
		idx := strings.Index(lower, strings.ToLower(term))
		if idx < 0 {
			continue
		}
		runeIdx := len([]rune(lower[:idx]))
		if best < 0 || runeIdx < best {
			best = runeIdx
		}
	}
	return best
}

// wrapMatches HTML-escapes window and wraps every case-insensitive
// occurrence of any term in <mark> tags. Escaping happens per-segment
// so mark tags themselves are never escaped.
func wrapMatches(window string, terms []string) string {
	if len(terms) == 0 {
		return html.EscapeString(window)
	}

	lower := strings.ToLower(window)
	var spans []highlightSpan
	for _, term := range terms {
		lt := strings.ToLower(term)
		if lt == "" {
			continue
		}
		from := 0
		for {
			idx := strings.Index(lower[from:], lt)
			if idx < 0 {
				break
			}
			abs := from + idx
			spans = append(spans, highlightSpan{abs, abs + len(lt)})
			from = abs + len(lt)
		}
	}
	if len(spans) == 0 {
		return html.EscapeString(window)
	}

	// Merge overlapping/adjacent spans so nested matches don't produce
	// nested or duplicated <mark> tags.
	sortSpans(spans)
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	cursor := 0
	for _, s := range merged {
		b.WriteString(html.EscapeString(window[cursor:s.start]))
		b.WriteString(markOpen)
		b.WriteString(html.EscapeString(window[s.start:s.end]))
		b.WriteString(markClose)
		cursor = s.end
	}
	b.WriteString(html.EscapeString(window[cursor:]))
	return b.String()
}

// highlightSpan is a half-open byte range within a snippet window.
type highlightSpan struct{ start, end int }

func sortSpans(spans []highlightSpan) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1].start > spans[j].start; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}
}
