package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRewritesPlaceholders(t *testing.T) {
	doc := "This Lease is made between [Landlord Name] and <<Tenant Name>>.\n" +
		"Rent: $_____ per month.\n" +
		"Start date: __________\n" +
		"Signed: [INSERT Signatory]\n" +
		"Witness ________ present.\n" +
		"Already {{Tenant_Name}} set. Also {{ effective date }}."

	res, err := Normalize(doc, nil)
	require.NoError(t, err)

	want := "This Lease is made between {{Landlord_Name}} and {{Tenant_Name}}.\n" +
		"Rent: {{Rent}} per month.\n" +
		"Start date: {{Start_Date}}\n" +
		"Signed: {{Signatory}}\n" +
		"Witness {{Blank_1}} present.\n" +
		"Already {{Tenant_Name}} set. Also {{Effective_Date}}."
	assert.Equal(t, want, res.Content)
	assert.Equal(t, 7, res.Replacements)

	names := make([]string, 0, len(res.Placeholders))
	for _, p := range res.Placeholders {
		names = append(names, p.Name)
		for _, occ := range p.Occurrences {
			assert.Equal(t, "{{"+p.Name+"}}", res.Content[occ.Start:occ.End])
		}
	}
	assert.Equal(t, []string{"Landlord_Name", "Tenant_Name", "Rent", "Start_Date", "Signatory", "Blank_1", "Effective_Date"}, names)

	tenant := res.Placeholders[1]
	assert.Len(t, tenant.Occurrences, 2)
	assert.Equal(t, "Tenant Name", tenant.Label)
	assert.Equal(t, "party", tenant.FieldType)
	assert.Equal(t, "currency", res.Placeholders[2].FieldType)
	assert.Equal(t, "date", res.Placeholders[3].FieldType)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	doc := "Between [Buyer] and ______ on [●]. Price: $____"
	first, err := Normalize(doc, nil)
	require.NoError(t, err)
	assert.Greater(t, first.Replacements, 0)

	second, err := Normalize(first.Content, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 0, second.Replacements)
	assert.Len(t, second.Placeholders, len(first.Placeholders))
}

func TestNormalizeKeepsLabelsOnSecondPass(t *testing.T) {
	first, err := Normalize("Tenant: [Tenant Name]\nRent: $____", nil)
	require.NoError(t, err)
	require.Len(t, first.Placeholders, 2)
	assert.Equal(t, "Tenant Name", first.Placeholders[0].Label)

	second, err := Normalize(first.Content, nil)
	require.NoError(t, err)
	require.Len(t, second.Placeholders, 2)
	for i, p := range second.Placeholders {
		assert.Equal(t, first.Placeholders[i].Name, p.Name)
		assert.Equal(t, first.Placeholders[i].Label, p.Label)
		assert.Equal(t, first.Placeholders[i].FieldType, p.FieldType)
	}

	// a model label for an existing token wins over the token's spelling
	third, err := Normalize("Signed on {{Signing_Date}}.", []Hint{{Label: " signing date ", Text: "{{Signing_Date}}"}})
	require.NoError(t, err)
	require.Len(t, third.Placeholders, 1)
	assert.Equal(t, "signing date", third.Placeholders[0].Label)
	assert.Equal(t, 0, third.Replacements)
}

func TestNormalizeUsesHints(t *testing.T) {
	doc := "Company: (name of company)\nDate: ______"
	res, err := Normalize(doc, []Hint{
		{Label: "Company Name", Text: "(name of company)"},
		{Label: "Signing Date", Text: "Date: ______"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Company: {{Company_Name}}\nDate: {{Signing_Date}}", res.Content)
	assert.Equal(t, 2, res.Replacements)
}

func TestNormalizeIgnoresOrdinaryHintText(t *testing.T) {
	doc := "The Landlord shall maintain the premises."
	res, err := Normalize(doc, []Hint{{Label: "Landlord", Text: "Landlord"}})
	require.NoError(t, err)
	assert.Equal(t, doc, res.Content)
	assert.Empty(t, res.Placeholders)
}

func TestNormalizeContinuesBlankNumbering(t *testing.T) {
	res, err := Normalize("A {{Blank_2}} and ____ here", nil)
	require.NoError(t, err)
	assert.Equal(t, "A {{Blank_2}} and {{Blank_3}} here", res.Content)
}

func TestCanonicalName(t *testing.T) {
	tests := map[string]string{
		"tenant's full name": "Tenants_Full_Name",
		"EFFECTIVE DATE":     "Effective_Date",
		"Company LLC":        "Company_LLC",
		"McDonald address":   "McDonald_Address",
		"start-date":         "Start_Date",
		"   ":                "",
		"Tenant_Name":        "Tenant_Name",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalName(in), in)
	}
}

func TestFieldTypeFor(t *testing.T) {
	assert.Equal(t, "date", FieldTypeFor("Effective Date"))
	assert.Equal(t, "email", FieldTypeFor("Notice Email"))
	assert.Equal(t, "percentage", FieldTypeFor("Interest Rate"))
	assert.Equal(t, "currency", FieldTypeFor("Monthly Rent"))
	assert.Equal(t, "address", FieldTypeFor("Property Address"))
	assert.Equal(t, "number", FieldTypeFor("Notice Days"))
	assert.Equal(t, "party", FieldTypeFor("Seller"))
	assert.Equal(t, "text", FieldTypeFor("Governing Law"))

	// keywords are whole words, not substrings
	assert.Equal(t, "address", FieldTypeFor("Current Address"))
	assert.Equal(t, "party", FieldTypeFor("Corporate Name"))
	assert.Equal(t, "party", FieldTypeFor("Parent Company"))
	assert.Equal(t, "text", FieldTypeFor("Governing Jurisdiction"))

	assert.Equal(t, "date", FieldTypeFor("Expiration"))
	assert.Equal(t, "date", FieldTypeFor("Payment_Due_Date"))
	assert.Equal(t, "email", FieldTypeFor("Tenant E-mail"))
	assert.Equal(t, "percentage", FieldTypeFor("Late Fee %"))
	assert.Equal(t, "percentage", FieldTypeFor("Commission Percentage"))
	assert.Equal(t, "currency", FieldTypeFor("Security Deposits"))
	assert.Equal(t, "currency", FieldTypeFor("Total ($)"))
	assert.Equal(t, "number", FieldTypeFor("Term Months"))
}

func TestRender(t *testing.T) {
	content := "Dear {{Tenant_Name}}, rent {{ Rent }} due {{Due_Date}}. Thanks {{Tenant_Name}}."
	out, missing := Render(content, map[string]string{"tenant name": "Ann", "Rent": "$900"})
	assert.Equal(t, "Dear Ann, rent $900 due {{Due_Date}}. Thanks Ann.", out)
	assert.Equal(t, []string{"Due_Date"}, missing)
}
