package service

import (
	"fmt"
	"strings"

	"contractdesk-backend/models"
)

const analystInstruction = "You are an experienced commercial contracts attorney. " +
	"Read documents carefully, quote them verbatim, and answer only with the JSON structure requested."

func summaryPrompt(doc *models.Document) string {
	return fmt.Sprintf(`Summarize the following %s.

Return a JSON object with exactly these keys:
{
  "title": "short descriptive title",
  "document_type": "e.g. Non-Disclosure Agreement, Residential Lease",
  "overview": "3-5 sentence plain-language summary",
  "parties": ["each party as named in the document"],
  "effective_date": "as written in the document, or empty string",
  "key_terms": [{"term": "name of the term", "value": "what the document says"}],
  "obligations": ["one sentence per key obligation, naming the obligated party"]
}

RULES:
- Use only information present in the document
- Do not invent parties, dates or amounts
- If a value is a blank or placeholder, say so instead of guessing

DOCUMENT:
%s`, kindNoun(doc.Kind), doc.Content)
}

func risksPrompt(doc *models.Document) string {
	return fmt.Sprintf(`Identify the legal and commercial risks in the following %s.

Return a JSON object:
{
  "risks": [
    {
      "clause": "the risky text quoted VERBATIM from the document (one sentence or clause, no paraphrasing)",
      "location": "section number or heading where it appears",
      "level": "high | medium | low",
      "score": 1-10,
      "category": "e.g. liability, termination, payment, confidentiality, compliance",
      "explanation": "why this is a risk",
      "suggestion": "concrete redline or negotiation suggestion",
      "affected_party": "which party bears the risk"
    }
  ],
  "overall_score": 1-10
}

RULES (CRITICAL):
- The "clause" value MUST be copied character for character from the document so it can be highlighted
- Score 7-10 is high, 4-6 medium, 1-3 low
- Order risks from most to least severe
- Return an empty list if there are no meaningful risks

DOCUMENT:
%s`, kindNoun(doc.Kind), doc.Content)
}

func fieldsPrompt(doc *models.Document) string {
	return fmt.Sprintf(`Find every blank, placeholder or missing piece of information in the following %s
that a user must fill in before the document can be signed.

Return a JSON object:
{
  "variables": [
    {
      "label": "human readable name, e.g. Tenant Name",
      "text": "the placeholder exactly as it appears in the document, e.g. [TENANT NAME] or ________",
      "field_type": "text | date | currency | number | party | address | email | percentage"
    }
  ]
}

RULES:
- Include bracketed placeholders, underscores, "XXXX" markers and {{tokens}}
- "text" must be copied exactly from the document
- Use one entry per distinct piece of information; repeated placeholders share one entry
- Return an empty list when nothing is missing

DOCUMENT:
%s`, kindNoun(doc.Kind), doc.Content)
}

// chatInstruction primes a conversation with the document and its summary
func chatInstruction(doc *models.Document) string {
	var b strings.Builder
	b.WriteString("You are a contracts assistant answering questions about one document. ")
	b.WriteString("Quote the document when you rely on it and say so when the document does not answer the question. ")
	b.WriteString("Do not give definitive legal advice.\n\n")

	if s := doc.AnalysisCache.Summary; s != nil {
		fmt.Fprintf(&b, "SUMMARY:\n%s\n", s.Overview)
		if len(s.Parties) > 0 {
			fmt.Fprintf(&b, "PARTIES: %s\n", strings.Join(s.Parties, "; "))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "DOCUMENT (%s) %q:\n%s", kindNoun(doc.Kind), doc.Title, doc.Content)
	return b.String()
}

func kindNoun(kind models.DocumentKind) string {
	if kind == models.KindTemplate {
		return "contract template"
	}
	return "contract"
}
