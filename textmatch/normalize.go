package textmatch

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Placeholder is one canonical {{Variable_Name}} and where it appears
type Placeholder struct {
	Name        string
	Label       string
	FieldType   string
	Occurrences []Span
}

// Hint is a variable reported by the model: a label and the literal text it
// saw in the document (e.g. "Tenant Name" / "Tenant: ________").
type Hint struct {
	Label string
	Text  string
}

// NormalizeResult is the rewritten document plus its placeholders
type NormalizeResult struct {
	Content      string
	Replacements int
	Placeholders []Placeholder
}

var (
	canonicalTokenRe = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)
	renderTokenRe    = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)
	labelBeforeRe    = regexp.MustCompile(`([A-Za-z][A-Za-z '’]{0,40}?)\s*:\s*$`)
	blankNameRe      = regexp.MustCompile(`^Blank_(\d+)$`)
	allXRe           = regexp.MustCompile(`^[Xx]{3,}$`)
)

type blankKind int

const (
	labeled blankKind = iota
	unlabeled
	currency
)

type pattern struct {
	re   *regexp.Regexp
	kind blankKind
}

// patterns in priority order; a later match overlapping an earlier one is ignored
var patterns = []pattern{
	{regexp.MustCompile(`\{\{\s*([^{}\n]{1,80}?)\s*\}\}`), labeled},
	{regexp.MustCompile(`(?i)\[\s*(?:insert|enter)\s+([^\[\]\n]{1,60}?)\s*\]`), labeled},
	{regexp.MustCompile(`<<\s*([^<>\n]{1,60}?)\s*>>`), labeled},
	{regexp.MustCompile(`(?i)\(\s*(?:insert|enter)\s+([^()\n]{1,60}?)\s*\)`), labeled},
	{regexp.MustCompile(`\[\s*(?:_{2,}|●|•|\*+|\.{3,}|…)\s*\]`), unlabeled},
	{regexp.MustCompile(`\[\s*([A-Za-z][A-Za-z0-9 .,'’/&\-]{0,60}?)\s*\]`), labeled},
	{regexp.MustCompile(`\{\s*([A-Za-z][A-Za-z0-9 _\-]{0,60}?)\s*\}`), labeled},
	{regexp.MustCompile(`\$\s?_{3,}`), currency},
	{regexp.MustCompile(`_{3,}`), unlabeled},
}

type detection struct {
	start, end int
	label      string
	name       string
	canonical  bool
	kind       blankKind
}

func (d detection) overlaps(o detection) bool {
	return d.start < o.end && o.start < d.end
}

// Normalize rewrites every free-form blank or placeholder in doc into the
// canonical {{Variable_Name}} form. Already canonical tokens are kept, so
// normalizing twice changes nothing.
func Normalize(doc string, hints []Hint) (NormalizeResult, error) {
	var found []detection
	taken := func(d detection) bool {
		for _, f := range found {
			if f.overlaps(d) {
				return true
			}
		}
		return false
	}

	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(doc, -1) {
			d := detection{start: m[0], end: m[1], kind: p.kind}
			if len(m) >= 4 && m[2] >= 0 {
				d.label = strings.TrimSpace(doc[m[2]:m[3]])
			}
			if taken(d) {
				continue
			}
			if p.kind == labeled && CanonicalName(d.label) == "" {
				continue
			}
			if doc[d.start:d.end] == "{{"+d.label+"}}" && CanonicalName(d.label) == d.label {
				d.canonical = true
				d.name = d.label
				d.label = strings.ReplaceAll(d.label, "_", " ")
			}
			found = append(found, d)
		}
	}

	// placeholders only the model noticed, e.g. "XXXX" or "(name of company)"
	for _, h := range hints {
		text := strings.TrimSpace(h.Text)
		if !looksLikePlaceholder(text) || CanonicalName(h.Label) == "" {
			continue
		}
		for _, s := range LocateAll(doc, text) {
			d := detection{start: s.Start, end: s.End, label: h.Label, kind: labeled}
			if !taken(d) {
				found = append(found, d)
			}
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	applyHintLabels(doc, found, hints)
	nameDetections(doc, found)

	edits := make([]Edit, 0, len(found))
	labels := make(map[string]string)
	for _, d := range found {
		if _, ok := labels[d.name]; !ok {
			labels[d.name] = d.label
		}
		if d.canonical {
			continue
		}
		edits = append(edits, Edit{
			Start:       d.start,
			End:         d.end,
			Expected:    doc[d.start:d.end],
			Replacement: "{{" + d.name + "}}",
		})
	}

	content, err := Replace(doc, edits)
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("normalize: %w", err)
	}

	return NormalizeResult{
		Content:      content,
		Replacements: len(edits),
		Placeholders: collectPlaceholders(content, labels),
	}, nil
}

// applyHintLabels lets a model-provided label win for detections that lie
// inside the text the model quoted for it, and for canonical tokens of the
// same name.
func applyHintLabels(doc string, found []detection, hints []Hint) {
	for _, h := range hints {
		if CanonicalName(h.Label) == "" || strings.TrimSpace(h.Text) == "" {
			continue
		}
		name := CanonicalName(h.Label)
		for i := range found {
			if found[i].canonical && found[i].name == name {
				found[i].label = strings.TrimSpace(h.Label)
			}
		}
		for _, s := range LocateAll(doc, strings.TrimSpace(h.Text)) {
			for i := range found {
				d := &found[i]
				if d.canonical || d.start < s.Start || d.end > s.End {
					continue
				}
				d.label = h.Label
				d.kind = labeled
			}
		}
	}
}

func nameDetections(doc string, found []detection) {
	next := 1
	for _, m := range canonicalTokenRe.FindAllStringSubmatch(doc, -1) {
		if bm := blankNameRe.FindStringSubmatch(m[1]); bm != nil {
			if n, err := strconv.Atoi(bm[1]); err == nil && n >= next {
				next = n + 1
			}
		}
	}

	for i := range found {
		d := &found[i]
		if d.canonical {
			continue
		}
		if d.kind != labeled {
			if label := labelBefore(doc, d.start); label != "" {
				d.label = label
			} else if d.kind == currency {
				d.label = "Amount"
			} else {
				d.label = fmt.Sprintf("Blank %d", next)
				next++
			}
		}
		d.name = CanonicalName(d.label)
	}
}

// labelBefore returns "Name" for a blank written as "Name: ______"
func labelBefore(doc string, pos int) string {
	lineStart := strings.LastIndexByte(doc[:pos], '\n') + 1
	m := labelBeforeRe.FindStringSubmatch(doc[lineStart:pos])
	if m == nil {
		return ""
	}
	words := strings.Fields(m[1])
	if len(words) > 3 {
		words = words[len(words)-3:]
	}
	return strings.Join(words, " ")
}

func collectPlaceholders(content string, labels map[string]string) []Placeholder {
	var out []Placeholder
	index := make(map[string]int)
	for _, m := range canonicalTokenRe.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		i, ok := index[name]
		if !ok {
			label := labels[name]
			if label == "" {
				label = strings.ReplaceAll(name, "_", " ")
			}
			out = append(out, Placeholder{Name: name, Label: label, FieldType: FieldTypeFor(label)})
			i = len(out) - 1
			index[name] = i
		}
		out[i].Occurrences = append(out[i].Occurrences, Span{Start: m[0], End: m[1], Method: MethodExact, Score: 1})
	}
	return out
}

func looksLikePlaceholder(text string) bool {
	if text == "" {
		return false
	}
	if strings.Contains(text, "__") || allXRe.MatchString(text) {
		return true
	}
	first, last := text[0], text[len(text)-1]
	return (first == '[' && last == ']') || (first == '(' && last == ')') ||
		(first == '<' && last == '>') || (first == '{' && last == '}')
}

// CanonicalName turns a free-form label into Title_Case words joined by
// underscores: "tenant's full name" -> "Tenants_Full_Name".
func CanonicalName(label string) string {
	label = strings.NewReplacer("'", "", "’", "").Replace(label)
	words := strings.FieldsFunc(label, func(r rune) bool {
		return !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
	})
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, "_")
}

func titleWord(w string) string {
	lower, upper := strings.ToLower(w), strings.ToUpper(w)
	switch {
	case w == upper && len(w) <= 3:
		// acronyms such as LLC, USD
		return w
	case w == lower || w == upper:
		return strings.ToUpper(lower[:1]) + lower[1:]
	default:
		return strings.ToUpper(w[:1]) + w[1:]
	}
}

// FieldTypeFor guesses an input type from a variable label. Keywords match
// whole words, optionally plural; a trailing * matches a word prefix.
func FieldTypeFor(label string) string {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	joined := " " + strings.Join(words, " ") + " "
	has := func(keywords ...string) bool {
		for _, k := range keywords {
			if stem, ok := strings.CutSuffix(k, "*"); ok {
				if strings.Contains(joined, " "+stem) {
					return true
				}
				continue
			}
			if strings.Contains(joined, " "+k+" ") || strings.Contains(joined, " "+k+"s ") {
				return true
			}
		}
		return false
	}
	switch {
	case has("date", "day of", "deadline", "expir*"):
		return "date"
	case has("email", "e mail"):
		return "email"
	case has("percent*", "rate") || strings.Contains(label, "%"):
		return "percentage"
	case has("amount", "price", "fee", "rent", "salary", "payment", "deposit", "cost", "compensation") || strings.Contains(label, "$"):
		return "currency"
	case has("address", "addresses", "street", "city", "zip", "postal"):
		return "address"
	case has("number", "count", "quantity", "day", "month", "year", "term"):
		return "number"
	case has("name", "party", "company", "landlord", "tenant", "employer", "employee", "buyer", "seller", "client", "vendor"):
		return "party"
	default:
		return "text"
	}
}

// Render substitutes {{Name}} tokens with values. Keys are compared by
// canonical name; tokens without a value are left in place and reported.
func Render(content string, values map[string]string) (string, []string) {
	canonical := make(map[string]string, len(values))
	for k, v := range values {
		canonical[CanonicalName(k)] = v
	}

	var missing []string
	seen := make(map[string]bool)
	out := renderTokenRe.ReplaceAllStringFunc(content, func(tok string) string {
		name := renderTokenRe.FindStringSubmatch(tok)[1]
		if v, ok := canonical[CanonicalName(name)]; ok {
			return v
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return tok
	})
	return out, missing
}
