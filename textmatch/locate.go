package textmatch

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Match methods, in the order Locate tries them
const (
	MethodExact           = "exact"
	MethodCaseInsensitive = "case_insensitive"
	MethodWhitespace      = "whitespace"
	MethodFuzzy           = "fuzzy"
	MethodPartial         = "partial"
)

// Span is a byte range [Start, End) of the original document
type Span struct {
	Start  int
	End    int
	Method string
	Score  float64
}

// Len returns the length of the span in bytes
func (s Span) Len() int { return s.End - s.Start }

// Locator maps quoted text back onto a document
type Locator struct {
	// FuzzyThreshold is the minimum token overlap (0..1) a fuzzy window needs
	FuzzyThreshold float64
	// MinFragment is the shortest quote fragment tried by partial matching
	MinFragment int
	// MinFuzzyTokens is the shortest quote (in words) fuzzy matching is tried for
	MinFuzzyTokens int
}

// DefaultLocator is used by the package-level helpers
var DefaultLocator = Locator{
	FuzzyThreshold: 0.6,
	MinFragment:    20,
	MinFuzzyTokens: 3,
}

// Locate finds quote in doc with the default locator
func Locate(doc, quote string) (Span, bool) {
	return DefaultLocator.Locate(doc, quote)
}

// Locate tries an exact, then case-insensitive, then whitespace-normalized,
// then fuzzy and finally partial match. Offsets always refer to doc.
func (l Locator) Locate(doc, quote string) (Span, bool) {
	quote = cleanQuote(quote)
	if quote == "" || doc == "" {
		return Span{}, false
	}

	if i := strings.Index(doc, quote); i >= 0 {
		return Span{Start: i, End: i + len(quote), Method: MethodExact, Score: 1}, true
	}

	if span, ok := indexFolded(doc, quote, false); ok {
		span.Method = MethodCaseInsensitive
		span.Score = 1
		return span, true
	}

	if span, ok := indexFolded(doc, quote, true); ok {
		span.Method = MethodWhitespace
		span.Score = 1
		return span, true
	}

	if span, ok := l.fuzzy(doc, quote); ok {
		return span, true
	}

	return l.partial(doc, quote)
}

// LocateAll returns every non-overlapping case-insensitive occurrence of
// text in doc, in document order.
func LocateAll(doc, text string) []Span {
	if text == "" || doc == "" {
		return nil
	}
	nd := newNormalized(doc, true, false)
	nt := newNormalized(text, true, false)
	if nt.text == "" {
		return nil
	}

	var spans []Span
	offset := 0
	for offset <= len(nd.text)-len(nt.text) {
		i := strings.Index(nd.text[offset:], nt.text)
		if i < 0 {
			break
		}
		i += offset
		span := nd.span(i, i+len(nt.text))
		span.Method = MethodCaseInsensitive
		span.Score = 1
		if doc[span.Start:span.End] == text {
			span.Method = MethodExact
		}
		spans = append(spans, span)
		offset = i + len(nt.text)
	}
	return spans
}

// cleanQuote strips wrapping quotation marks and trailing ellipses that
// models like to add around quoted clauses.
func cleanQuote(q string) string {
	q = strings.TrimSpace(q)
	for {
		before := q
		q = strings.TrimSuffix(q, "...")
		q = strings.TrimSuffix(q, "…")
		q = strings.TrimPrefix(q, "...")
		q = strings.TrimPrefix(q, "…")
		if len(q) >= 2 {
			first, _ := utf8.DecodeRuneInString(q)
			last, _ := utf8.DecodeLastRuneInString(q)
			if isQuoteRune(first) && isQuoteRune(last) {
				q = q[utf8.RuneLen(first) : len(q)-utf8.RuneLen(last)]
			}
		}
		q = strings.TrimSpace(q)
		if q == before {
			return q
		}
	}
}

func isQuoteRune(r rune) bool {
	switch r {
	case '"', '\'', '“', '”', '‘', '’', '«', '»', '`':
		return true
	}
	return false
}

// normalized is a transformed copy of a string that remembers, for every
// byte it contains, which original bytes produced it.
type normalized struct {
	text   string
	starts []int
	ends   []int
}

func newNormalized(s string, fold, loose bool) normalized {
	var b strings.Builder
	b.Grow(len(s))
	starts := make([]int, 0, len(s))
	ends := make([]int, 0, len(s))
	prevSpace := false
	var buf [utf8.UTFMax]byte

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		end := i + size

		if loose && unicode.IsSpace(r) {
			if prevSpace {
				ends[len(ends)-1] = end
			} else {
				b.WriteByte(' ')
				starts = append(starts, i)
				ends = append(ends, end)
				prevSpace = true
			}
			i = end
			continue
		}
		prevSpace = false

		if fold {
			r = unicode.ToLower(r)
		}
		if loose {
			r = foldPunct(r)
		}
		n := utf8.EncodeRune(buf[:], r)
		b.Write(buf[:n])
		for k := 0; k < n; k++ {
			starts = append(starts, i)
			ends = append(ends, end)
		}
		i = end
	}
	return normalized{text: b.String(), starts: starts, ends: ends}
}

// span maps a normalized byte range back to the original string
func (n normalized) span(i, j int) Span {
	if j <= i {
		return Span{Start: n.starts[i], End: n.starts[i]}
	}
	return Span{Start: n.starts[i], End: n.ends[j-1]}
}

func foldPunct(r rune) rune {
	switch r {
	case '“', '”', '„', '«', '»':
		return '"'
	case '‘', '’', '‚', '`':
		return '\''
	case '–', '—', '‐', '‑', '−':
		return '-'
	}
	return r
}

func indexFolded(doc, quote string, loose bool) (Span, bool) {
	nq := newNormalized(quote, true, loose)
	q := nq.text
	if loose {
		q = strings.TrimSpace(q)
	}
	if q == "" {
		return Span{}, false
	}
	nd := newNormalized(doc, true, loose)
	i := strings.Index(nd.text, q)
	if i < 0 {
		return Span{}, false
	}
	return nd.span(i, i+len(q)), true
}

type token struct {
	word       string
	start, end int // byte offsets in the original document
}

func tokenize(s string) []token {
	var tokens []token
	start := -1
	var b strings.Builder
	for i, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
				b.Reset()
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if start >= 0 {
			tokens = append(tokens, token{word: b.String(), start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{word: b.String(), start: start, end: len(s)})
	}
	return tokens
}

// fuzzy slides a window of the quote's word count over the document and
// keeps the window sharing the most words with the quote.
func (l Locator) fuzzy(doc, quote string) (Span, bool) {
	qt := tokenize(quote)
	n := len(qt)
	if n < l.MinFuzzyTokens {
		return Span{}, false
	}
	dt := tokenize(doc)
	if len(dt) == 0 {
		return Span{}, false
	}
	if n > len(dt) {
		n = len(dt)
	}

	want := make(map[string]int, len(qt))
	for _, t := range qt {
		want[t.word]++
	}

	have := make(map[string]int, n)
	overlap := 0
	add := func(w string) {
		if have[w] < want[w] {
			overlap++
		}
		have[w]++
	}
	remove := func(w string) {
		have[w]--
		if have[w] < want[w] {
			overlap--
		}
	}

	best, bestAt := -1, 0
	for i := 0; i < len(dt); i++ {
		add(dt[i].word)
		if i >= n {
			remove(dt[i-n].word)
		}
		if i >= n-1 && overlap > best {
			best, bestAt = overlap, i-n+1
		}
	}

	score := float64(best) / float64(len(qt))
	if score < l.FuzzyThreshold {
		return Span{}, false
	}

	// tighten the window to the first and last shared word
	window := dt[bestAt : bestAt+n]
	first, last := 0, len(window)-1
	for first < last && want[window[first].word] == 0 {
		first++
	}
	for last > first && want[window[last].word] == 0 {
		last--
	}
	return Span{
		Start:  window[first].start,
		End:    window[last].end,
		Method: MethodFuzzy,
		Score:  score,
	}, true
}

// partial looks for the longest sentence-sized fragment of the quote
func (l Locator) partial(doc, quote string) (Span, bool) {
	fragments := splitFragments(quote)
	sort.SliceStable(fragments, func(i, j int) bool {
		return len(fragments[i]) > len(fragments[j])
	})
	for _, f := range fragments {
		if len(f) < l.MinFragment || len(f) == len(quote) {
			continue
		}
		span, ok := indexFolded(doc, f, true)
		if !ok {
			continue
		}
		span.Method = MethodPartial
		span.Score = float64(len(f)) / float64(len(quote))
		return span, true
	}
	return Span{}, false
}

func splitFragments(s string) []string {
	s = strings.ReplaceAll(s, "…", "...")
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == ';' || r == ':' || r == '\n' || r == '!' || r == '?'
	})
	fragments := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			fragments = append(fragments, p)
		}
	}
	return fragments
}
