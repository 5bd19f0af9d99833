package domain

// Intent is the retrieval strategy chosen for a user question.
type Intent string

const (
	IntentStructured Intent = "structured"
	IntentSemantic   Intent = "semantic"
	IntentHybrid     Intent = "hybrid"
)

// IsValidIntent checks if an Intent is one of the known values.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentStructured, IntentSemantic, IntentHybrid:
		return true
	}
	return false
}

// Structured query labels form a closed vocabulary. The classifier may only
// return labels from this set; anything else is dropped.
const (
	LabelContentByCategory = "content_by_category"
	LabelContentByStatus   = "content_by_status"
	LabelMeetingsList      = "meetings_list"
	LabelTasksList         = "tasks_list"
	LabelInvoicesList      = "invoices_list"
	LabelContractOverview  = "contract_overview"
)

// KnownStructuredLabels lists every structured query label the engine understands.
var KnownStructuredLabels = []string{
	LabelContentByCategory,
	LabelContentByStatus,
	LabelMeetingsList,
	LabelTasksList,
	LabelInvoicesList,
	LabelContractOverview,
}

// IsKnownStructuredLabel reports whether label is part of the closed vocabulary.
func IsKnownStructuredLabel(label string) bool {
	for _, known := range KnownStructuredLabels {
		if label == known {
			return true
		}
	}
	return false
}

// Classification is the outcome of routing a question. StructuredLabels is
// always empty when Intent is semantic.
type Classification struct {
	Intent           Intent
	StructuredLabels []string
}

// FallbackClassification is used whenever classification fails for any
// reason: the question still gets answered via semantic retrieval.
func FallbackClassification() Classification {
	return Classification{Intent: IntentSemantic, StructuredLabels: []string{}}
}
