package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/tpelligrinomid/midrag/internal/domain"
)

// JSONCompleter is the provider surface for single-shot JSON-mode completions.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

const classifyInstructions = `You route user questions for a retrieval system.
Decide whether the question needs structured data lookups, semantic search over stored documents, or both.

Respond with a JSON object:
{"intent": "structured" | "semantic" | "hybrid", "structured_queries": [...]}

"structured_queries" may only contain values from this list:
- content_by_category: counts of content items grouped by category
- content_by_status: counts of content items grouped by workflow status
- meetings_list: recent meetings with their summaries
- tasks_list: open tasks and their status
- invoices_list: recent invoices and amounts
- contract_overview: the account's contract terms and dates

Use "structured" when the question is about counts, lists, statuses, dates or amounts.
Use "semantic" when it asks about the content or meaning of documents.
Use "hybrid" when it needs both. "structured_queries" must be empty for "semantic".`

// IntentClassifier decides which retrieval strategy a question needs.
type IntentClassifier struct {
	llm JSONCompleter
}

func NewIntentClassifier(llm JSONCompleter) *IntentClassifier {
	return &IntentClassifier{llm: llm}
}

// Classify never fails: any provider error, parse failure or out-of-vocabulary
// response degrades to semantic intent so the question still gets answered.
func (c *IntentClassifier) Classify(ctx context.Context, question string) domain.Classification {
	raw, err := c.llm.CompleteJSON(ctx, classifyInstructions, question)
	if err != nil {
		log.Printf("intent classification failed, falling back to semantic: %v", err)
		return domain.FallbackClassification()
	}

	var parsed struct {
		Intent            string   `json:"intent"`
		StructuredQueries []string `json:"structured_queries"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		log.Printf("intent response did not parse, falling back to semantic: %v", err)
		return domain.FallbackClassification()
	}

	intent := domain.Intent(strings.ToLower(strings.TrimSpace(parsed.Intent)))
	if !domain.IsValidIntent(intent) {
		log.Printf("falling back to semantic: %v: %q", domain.ErrInvalidIntent, parsed.Intent)
		return domain.FallbackClassification()
	}

	labels := []string{}
	if intent != domain.IntentSemantic {
		for _, label := range parsed.StructuredQueries {
			if domain.IsKnownStructuredLabel(label) {
				labels = append(labels, label)
			}
		}
	}

	return domain.Classification{Intent: intent, StructuredLabels: labels}
}
