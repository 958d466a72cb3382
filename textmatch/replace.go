package textmatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrStaleSpan        = errors.New("text at span no longer matches")
	ErrOverlappingEdits = errors.New("edits overlap")
	ErrSpanOutOfRange   = errors.New("span out of range")
	ErrTextNotFound     = errors.New("text not found in document")
)

// Edit replaces doc[Start:End], which must still read Expected
type Edit struct {
	Start       int
	End         int
	Expected    string
	Replacement string
}

// Replace applies edits from the end of the document backwards so earlier
// offsets stay valid. Every edit is verified before anything is changed.
func Replace(doc string, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return doc, nil
	}

	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	for i, e := range sorted {
		if e.Start < 0 || e.End < e.Start || e.End > len(doc) {
			return "", fmt.Errorf("%w: [%d,%d) of %d", ErrSpanOutOfRange, e.Start, e.End, len(doc))
		}
		if doc[e.Start:e.End] != e.Expected {
			return "", fmt.Errorf("%w: [%d,%d) expected %q", ErrStaleSpan, e.Start, e.End, e.Expected)
		}
		if i > 0 && sorted[i-1].End > e.Start {
			return "", fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrOverlappingEdits,
				sorted[i-1].Start, sorted[i-1].End, e.Start, e.End)
		}
	}

	var b strings.Builder
	b.Grow(len(doc))
	prev := 0
	for _, e := range sorted {
		b.WriteString(doc[prev:e.Start])
		b.WriteString(e.Replacement)
		prev = e.End
	}
	b.WriteString(doc[prev:])
	return b.String(), nil
}

// ReplaceText is a case-insensitive find-and-replace that only touches
// whole located occurrences. With all=false only the first one changes.
func ReplaceText(doc, find, replacement string, all bool) (string, int, error) {
	spans := LocateAll(doc, find)
	if len(spans) == 0 {
		return doc, 0, ErrTextNotFound
	}
	if !all {
		spans = spans[:1]
	}

	edits := make([]Edit, 0, len(spans))
	for _, s := range spans {
		edits = append(edits, Edit{
			Start:       s.Start,
			End:         s.End,
			Expected:    doc[s.Start:s.End],
			Replacement: replacement,
		})
	}

	out, err := Replace(doc, edits)
	if err != nil {
		return doc, 0, err
	}
	return out, len(edits), nil
}
