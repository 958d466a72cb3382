package textmatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleContract = "1. Term. This Agreement shall commence on the Effective Date.\n" +
	"2. Termination.  Either party may\nterminate this Agreement upon thirty (30) days written notice.\n" +
	"3. Liability. The Supplier’s total liability shall not exceed the fees paid."

func TestLocate(t *testing.T) {
	tests := []struct {
		name   string
		quote  string
		method string
		want   string
	}{
		{"exact", "Either party may", MethodExact, "Either party may"},
		{"case insensitive", "THIS AGREEMENT SHALL COMMENCE", MethodCaseInsensitive, "This Agreement shall commence"},
		{"line break in document", "Either party may terminate this Agreement", MethodWhitespace, "Either party may\nterminate this Agreement"},
		{"typographic apostrophe", "The Supplier's total liability", MethodWhitespace, "The Supplier’s total liability"},
		{"wrapping quotes and ellipsis", "\"Either party may...\"", MethodExact, "Either party may"},
		{"smart quotes", "“total liability shall not exceed”", MethodExact, "total liability shall not exceed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, ok := Locate(sampleContract, tt.quote)
			require.True(t, ok)
			assert.Equal(t, tt.method, span.Method)
			assert.Equal(t, tt.want, sampleContract[span.Start:span.End])
			assert.Equal(t, 1.0, span.Score)
		})
	}
}

func TestLocateFuzzy(t *testing.T) {
	span, ok := Locate(sampleContract, "Either party can terminate this Agreement upon thirty days notice")
	require.True(t, ok)
	assert.Equal(t, MethodFuzzy, span.Method)
	assert.InDelta(t, 0.8, span.Score, 0.001)
	assert.Equal(t, "Either party may\nterminate this Agreement upon thirty (30) days", sampleContract[span.Start:span.End])
}

func TestLocatePartial(t *testing.T) {
	quote := "Completely unrelated opening words here that never appear. This Agreement shall commence on the Effective Date"
	span, ok := Locate(sampleContract, quote)
	require.True(t, ok)
	assert.Equal(t, MethodPartial, span.Method)
	assert.Equal(t, "This Agreement shall commence on the Effective Date", sampleContract[span.Start:span.End])
	assert.Less(t, span.Score, 1.0)
}

func TestLocateMisses(t *testing.T) {
	_, ok := Locate(sampleContract, "indemnify and hold harmless")
	assert.False(t, ok)

	_, ok = Locate(sampleContract, "   ")
	assert.False(t, ok)

	_, ok = Locate("", "anything")
	assert.False(t, ok)
}

func TestLocateOffsetsWithMultibyteText(t *testing.T) {
	doc := "Préambule — Le Fournisseur s’engage à livrer."
	span, ok := Locate(doc, "LE FOURNISSEUR S'ENGAGE")
	require.True(t, ok)
	assert.Equal(t, "Le Fournisseur s’engage", doc[span.Start:span.End])
}

func TestLocateStrictThreshold(t *testing.T) {
	strict := Locator{FuzzyThreshold: 0.95, MinFragment: 20, MinFuzzyTokens: 3}
	_, ok := strict.Locate(sampleContract, "Either party can terminate this Agreement upon thirty days notice")
	assert.False(t, ok)
}

func TestLocateAll(t *testing.T) {
	doc := "Tenant: ____. The TENANT shall pay. tenant"
	spans := LocateAll(doc, "tenant")
	require.Len(t, spans, 3)
	assert.Equal(t, MethodCaseInsensitive, spans[0].Method)
	assert.Equal(t, "TENANT", doc[spans[1].Start:spans[1].End])
	assert.Equal(t, MethodExact, spans[2].Method)

	assert.Empty(t, LocateAll(doc, "landlord"))
	assert.Empty(t, LocateAll(doc, ""))
}

func TestLocateAllDoesNotOverlap(t *testing.T) {
	spans := LocateAll("aaaa", "aa")
	require.Len(t, spans, 2)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, 2, spans[1].Start)
}

func TestReplace(t *testing.T) {
	doc := "abc def ghi"
	out, err := Replace(doc, []Edit{
		{Start: 8, End: 11, Expected: "ghi", Replacement: "Y"},
		{Start: 0, End: 3, Expected: "abc", Replacement: "X"},
	})
	require.NoError(t, err)
	assert.Equal(t, "X def Y", out)

	out, err = Replace(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, doc, out)
}

func TestReplaceRejectsBadEdits(t *testing.T) {
	doc := "abc def ghi"

	_, err := Replace(doc, []Edit{{Start: 0, End: 3, Expected: "abd", Replacement: "X"}})
	assert.True(t, errors.Is(err, ErrStaleSpan))

	_, err = Replace(doc, []Edit{
		{Start: 0, End: 5, Expected: "abc d", Replacement: "X"},
		{Start: 4, End: 7, Expected: "def", Replacement: "Y"},
	})
	assert.True(t, errors.Is(err, ErrOverlappingEdits))

	_, err = Replace(doc, []Edit{{Start: 5, End: 40, Expected: "x", Replacement: "X"}})
	assert.True(t, errors.Is(err, ErrSpanOutOfRange))
}

func TestReplaceText(t *testing.T) {
	doc := "The Supplier shall deliver. Payment to the supplier is due."

	out, n, err := ReplaceText(doc, "supplier", "Vendor", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "The Vendor shall deliver. Payment to the Vendor is due.", out)

	out, n, err = ReplaceText(doc, "supplier", "Vendor", false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "The Vendor shall deliver. Payment to the supplier is due.", out)

	out, n, err = ReplaceText(doc, "buyer", "Vendor", true)
	assert.ErrorIs(t, err, ErrTextNotFound)
	assert.Equal(t, 0, n)
	assert.Equal(t, doc, out)
}
