// Package spans validates, normalizes and formats the character ranges that
// anchor extent tags.
//
// The textual form is a comma separated list of start~end pairs, e.g.
// "0~3,5~8". A non-consuming tag is written "-1~-1".
package spans

import (
	"slices"
	"strconv"
	"strings"

	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
)

const (
	// Delimiter separates start and end within one span
	Delimiter = "~"
	// Separator separates spans
	Separator = ","
)

// NCPlaceholder is the textual form of the non-consuming sentinel span
var NCPlaceholder = Format([]types.Span{types.NCSpan})

// Parse reads the textual span form. An empty string yields no spans.
func Parse(s string) ([]types.Span, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, Separator)
	out := make([]types.Span, 0, len(parts))
	for _, part := range parts {
		start, end, ok := strings.Cut(strings.TrimSpace(part), Delimiter)
		if !ok {
			return nil, errors.Mark(errors.ErrInvalidSpan, "span %q is not start%send", part, Delimiter)
		}
		startPos, err := strconv.Atoi(strings.TrimSpace(start))
		if err != nil {
			return nil, errors.Mark(errors.ErrInvalidSpan, "span %q has non-numeric start", part)
		}
		endPos, err := strconv.Atoi(strings.TrimSpace(end))
		if err != nil {
			return nil, errors.Mark(errors.ErrInvalidSpan, "span %q has non-numeric end", part)
		}
		out = append(out, types.Span{Start: startPos, End: endPos})
	}
	return out, nil
}

// Format writes spans in the textual form
func Format(spans []types.Span) string {
	var b strings.Builder
	for i, sp := range spans {
		if i > 0 {
			b.WriteString(Separator)
		}
		b.WriteString(strconv.Itoa(sp.Start))
		b.WriteString(Delimiter)
		b.WriteString(strconv.Itoa(sp.End))
	}
	return b.String()
}

// Normalize validates the spans of one extent tag and returns them sorted.
//
// For a non-consuming type an empty list becomes the sentinel span, and the
// sentinel must stand alone. For a consuming type at least one real span is
// required. Real spans must satisfy 0 <= start < end and must not overlap;
// adjacent spans ([0,3) and [3,5)) stay distinct.
func Normalize(in []types.Span, nonConsuming bool) ([]types.Span, error) {
	if len(in) == 0 {
		if nonConsuming {
			return []types.Span{types.NCSpan}, nil
		}
		return nil, errors.Mark(errors.ErrInvalidSpan, "consuming tag needs at least one span")
	}

	sentinels := 0
	for _, sp := range in {
		if sp.IsSentinel() {
			sentinels++
		}
	}
	if sentinels > 0 {
		switch {
		case !nonConsuming:
			return nil, errors.Mark(errors.ErrInvalidSpan, "sentinel span %s on a consuming tag type", NCPlaceholder)
		case len(in) > 1:
			return nil, errors.Mark(errors.ErrInvalidSpan, "sentinel span %s mixed with other spans", NCPlaceholder)
		}
		return []types.Span{types.NCSpan}, nil
	}

	out := slices.Clone(in)
	for _, sp := range out {
		if sp.Start < 0 || sp.End <= sp.Start {
			return nil, errors.Mark(errors.ErrInvalidSpan, "malformed span %d%s%d", sp.Start, Delimiter, sp.End)
		}
	}

	slices.SortFunc(out, func(a, b types.Span) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.End - b.End
	})

	for i := 1; i < len(out); i++ {
		if out[i].Start < out[i-1].End {
			return nil, errors.Mark(errors.ErrInvalidSpan, "span %s overlaps %s",
				Format(out[i:i+1]), Format(out[i-1:i]))
		}
	}
	return out, nil
}

// Positions lists every covered position in ascending order.
// The sentinel span covers nothing.
func Positions(spans []types.Span) []int {
	n := 0
	for _, sp := range spans {
		n += sp.Len()
	}
	out := make([]int, 0, n)
	for _, sp := range spans {
		for p := sp.Start; p < sp.End && !sp.IsSentinel(); p++ {
			out = append(out, p)
		}
	}
	return out
}

// Covers reports whether any span contains pos
func Covers(spans []types.Span, pos int) bool {
	for _, sp := range spans {
		if sp.Contains(pos) {
			return true
		}
	}
	return false
}

// Text extracts the covered substring of doc, joining discontiguous pieces
// with sep. Positions are rune offsets; spans outside doc are clipped.
func Text(doc string, spans []types.Span, sep string) string {
	runes := []rune(doc)
	var pieces []string
	for _, sp := range spans {
		if sp.IsSentinel() {
			continue
		}
		start, end := min(max(sp.Start, 0), len(runes)), min(max(sp.End, 0), len(runes))
		if start < end {
			pieces = append(pieces, string(runes[start:end]))
		}
	}
	return strings.Join(pieces, sep)
}
