package usecase

import (
	"fmt"
	"strings"

	"github.com/advisorworks/advisor-copilot/internal/core/domain"
)

const systemPrompt = `You are a wealth advisor assistant helping financial advisors research regulatory filings and client documents.

RULES:
1. Use ONLY the provided sources. Never make up information.
2. If insufficient evidence, say "I don't have enough information to answer this."
3. Always cite sources using [1], [2], etc.
4. Never provide personalized investment advice.
5. End with confidence level (High/Medium/Low).`

const refusalResponse = `I don't have enough information to answer this question.

Please specify which document or filing to reference, or provide more context about what you're looking for.`

var intentPrompts = map[domain.Intent]string{
	domain.IntentQA:      "Answer this question based on the sources:\n\nSOURCES:\n%s\n\nQUESTION: %s",
	domain.IntentSummary: "Summarize based on these sources:\n\nSOURCES:\n%s\n\nSUMMARIZE: %s",
	domain.IntentRisk:    "Analyze risks from these sources:\n\nSOURCES:\n%s\n\nANALYSIS: %s",
	domain.IntentEmail:   "Draft a client email based on:\n\nSOURCES:\n%s\n\nREQUEST: %s\n\nInclude disclaimer about educational purposes.",
}

func buildUserPrompt(intent domain.Intent, sources, query string) string {
	tmpl, ok := intentPrompts[intent]
	if !ok {
		tmpl = intentPrompts[domain.IntentQA]
	}
	return fmt.Sprintf(tmpl, sources, query)
}

func buildIntentPrompt(query string) string {
	return fmt.Sprintf("Classify intent as qa/summary/risk/email:\n%s\nRespond with one word.", query)
}

// formatSources renders the evidence set as a numbered source list. The
// bracketed numbers are the citation anchors the model is instructed to use.
func formatSources(chunks []domain.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		title := c.DocTitle
		if title == "" {
			title = "Document"
		}
		header := fmt.Sprintf("[%d] %s", i+1, title)
		if c.Metadata.Section != "" {
			header += fmt.Sprintf(" - %s", c.Metadata.Section)
		}
		if c.Metadata.Page > 0 {
			header += fmt.Sprintf(" (p.%d)", c.Metadata.Page)
		}
		parts = append(parts, header+"\n"+c.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
