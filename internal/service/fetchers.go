package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tpelligrinomid/midrag/internal/domain"
)

const structuredFetchLimit = 20

// CategoryCount is one bucket of a content-by-category rollup.
type CategoryCount struct {
	Category string
	Count    int
}

// StatusCount is one bucket of a content-by-status rollup.
type StatusCount struct {
	Status string
	Count  int
}

// MeetingSummary is one row of the meetings listing.
type MeetingSummary struct {
	Title   string
	HeldAt  time.Time
	Summary string
}

// TaskSummary is one row of the open-tasks listing.
type TaskSummary struct {
	Name   string
	Status string
	DueAt  *time.Time
}

// InvoiceSummary is one row of the invoices listing.
type InvoiceSummary struct {
	Number      string
	Status      string
	AmountCents int64
	IssuedAt    time.Time
}

// ContractOverview describes the tenant's contract terms.
type ContractOverview struct {
	Name      string
	Status    string
	StartedAt time.Time
	RenewsAt  *time.Time
}

// StructuredStore is the read-only slice of the platform's business data the
// fetchers consume. The data model itself is owned elsewhere.
type StructuredStore interface {
	ContentByCategory(ctx context.Context, tenantID string) ([]CategoryCount, error)
	ContentByStatus(ctx context.Context, tenantID string) ([]StatusCount, error)
	RecentMeetings(ctx context.Context, tenantID string, limit int) ([]MeetingSummary, error)
	OpenTasks(ctx context.Context, tenantID string, limit int) ([]TaskSummary, error)
	RecentInvoices(ctx context.Context, tenantID string, limit int) ([]InvoiceSummary, error)
	ContractOverview(ctx context.Context, tenantID string) (*ContractOverview, error)
}

// FetchResult is one structured data block ready for prompt assembly.
type FetchResult struct {
	Label string
	Text  string
}

// ScopeHint narrows which source types the caller cares about so a fetcher
// can opt out before querying. An empty hint allows everything.
type ScopeHint struct {
	SourceTypes []domain.SourceType
}

// Allows reports whether any of the given source types is in scope.
func (h ScopeHint) Allows(types ...domain.SourceType) bool {
	if len(h.SourceTypes) == 0 {
		return true
	}
	for _, hinted := range h.SourceTypes {
		for _, t := range types {
			if hinted == t {
				return true
			}
		}
	}
	return false
}

type fetcherFunc func(ctx context.Context, tenantID string, scope ScopeHint) (*FetchResult, error)

// FetcherRegistry maps each structured query label to an independent fetcher.
// One label's failure is isolated: it is logged and skipped, never aborting
// the other labels.
type FetcherRegistry struct {
	fetchers map[string]fetcherFunc
}

func NewFetcherRegistry(store StructuredStore) *FetcherRegistry {
	r := &FetcherRegistry{fetchers: make(map[string]fetcherFunc)}

	r.fetchers[domain.LabelContentByCategory] = func(ctx context.Context, tenantID string, scope ScopeHint) (*FetchResult, error) {
		if !scope.Allows(domain.SourceTypeContentAsset, domain.SourceTypeDeliverable) {
			return nil, nil
		}
		counts, err := store.ContentByCategory(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if len(counts) == 0 {
			return nil, nil
		}
		var b strings.Builder
		b.WriteString("Content items by category:\n")
		for _, c := range counts {
			fmt.Fprintf(&b, "- %s: %d\n", c.Category, c.Count)
		}
		return &FetchResult{Label: domain.LabelContentByCategory, Text: b.String()}, nil
	}

	r.fetchers[domain.LabelContentByStatus] = func(ctx context.Context, tenantID string, scope ScopeHint) (*FetchResult, error) {
		if !scope.Allows(domain.SourceTypeContentAsset, domain.SourceTypeDeliverable) {
			return nil, nil
		}
		counts, err := store.ContentByStatus(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if len(counts) == 0 {
			return nil, nil
		}
		var b strings.Builder
		b.WriteString("Content items by status:\n")
		for _, c := range counts {
			fmt.Fprintf(&b, "- %s: %d\n", c.Status, c.Count)
		}
		return &FetchResult{Label: domain.LabelContentByStatus, Text: b.String()}, nil
	}

	r.fetchers[domain.LabelMeetingsList] = func(ctx context.Context, tenantID string, scope ScopeHint) (*FetchResult, error) {
		if !scope.Allows(domain.SourceTypeMeeting) {
			return nil, nil
		}
		meetings, err := store.RecentMeetings(ctx, tenantID, structuredFetchLimit)
		if err != nil {
			return nil, err
		}
		if len(meetings) == 0 {
			return nil, nil
		}
		var b strings.Builder
		b.WriteString("Recent meetings:\n")
		for _, m := range meetings {
			fmt.Fprintf(&b, "- %s (%s)", m.Title, m.HeldAt.Format("2006-01-02"))
			if m.Summary != "" {
				fmt.Fprintf(&b, ": %s", m.Summary)
			}
			b.WriteString("\n")
		}
		return &FetchResult{Label: domain.LabelMeetingsList, Text: b.String()}, nil
	}

	r.fetchers[domain.LabelTasksList] = func(ctx context.Context, tenantID string, scope ScopeHint) (*FetchResult, error) {
		tasks, err := store.OpenTasks(ctx, tenantID, structuredFetchLimit)
		if err != nil {
			return nil, err
		}
		if len(tasks) == 0 {
			return nil, nil
		}
		var b strings.Builder
		b.WriteString("Open tasks:\n")
		for _, task := range tasks {
			fmt.Fprintf(&b, "- %s [%s]", task.Name, task.Status)
			if task.DueAt != nil {
				fmt.Fprintf(&b, " due %s", task.DueAt.Format("2006-01-02"))
			}
			b.WriteString("\n")
		}
		return &FetchResult{Label: domain.LabelTasksList, Text: b.String()}, nil
	}

	r.fetchers[domain.LabelInvoicesList] = func(ctx context.Context, tenantID string, scope ScopeHint) (*FetchResult, error) {
		invoices, err := store.RecentInvoices(ctx, tenantID, structuredFetchLimit)
		if err != nil {
			return nil, err
		}
		if len(invoices) == 0 {
			return nil, nil
		}
		var b strings.Builder
		b.WriteString("Recent invoices:\n")
		for _, inv := range invoices {
			fmt.Fprintf(&b, "- %s [%s] $%.2f issued %s\n",
				inv.Number, inv.Status, float64(inv.AmountCents)/100, inv.IssuedAt.Format("2006-01-02"))
		}
		return &FetchResult{Label: domain.LabelInvoicesList, Text: b.String()}, nil
	}

	r.fetchers[domain.LabelContractOverview] = func(ctx context.Context, tenantID string, scope ScopeHint) (*FetchResult, error) {
		overview, err := store.ContractOverview(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if overview == nil {
			return nil, nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Contract: %s [%s], started %s", overview.Name, overview.Status, overview.StartedAt.Format("2006-01-02"))
		if overview.RenewsAt != nil {
			fmt.Fprintf(&b, ", renews %s", overview.RenewsAt.Format("2006-01-02"))
		}
		b.WriteString("\n")
		return &FetchResult{Label: domain.LabelContractOverview, Text: b.String()}, nil
	}

	return r
}

// FetchAll runs the fetchers for the requested labels and returns whichever
// produced data. Unknown labels and failed fetchers are skipped.
func (r *FetcherRegistry) FetchAll(ctx context.Context, labels []string, tenantID string, scope ScopeHint) []FetchResult {
	results := make([]FetchResult, 0, len(labels))
	for _, label := range labels {
		fetch, ok := r.fetchers[label]
		if !ok {
			log.Printf("unknown structured query label %q, skipping", label)
			continue
		}
		result, err := fetch(ctx, tenantID, scope)
		if err != nil {
			log.Printf("structured fetch %q failed, skipping: %v", label, err)
			continue
		}
		if result != nil {
			results = append(results, *result)
		}
	}
	return results
}
