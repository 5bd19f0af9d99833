package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tpelligrinomid/midrag/internal/domain"
)

type MockStructuredStore struct {
	mock.Mock
}

func (m *MockStructuredStore) ContentByCategory(ctx context.Context, tenantID string) ([]CategoryCount, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]CategoryCount), args.Error(1)
}

func (m *MockStructuredStore) ContentByStatus(ctx context.Context, tenantID string) ([]StatusCount, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]StatusCount), args.Error(1)
}

func (m *MockStructuredStore) RecentMeetings(ctx context.Context, tenantID string, limit int) ([]MeetingSummary, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]MeetingSummary), args.Error(1)
}

func (m *MockStructuredStore) OpenTasks(ctx context.Context, tenantID string, limit int) ([]TaskSummary, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]TaskSummary), args.Error(1)
}

func (m *MockStructuredStore) RecentInvoices(ctx context.Context, tenantID string, limit int) ([]InvoiceSummary, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]InvoiceSummary), args.Error(1)
}

func (m *MockStructuredStore) ContractOverview(ctx context.Context, tenantID string) (*ContractOverview, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ContractOverview), args.Error(1)
}

func TestFetchAll_FormatsEachLabel(t *testing.T) {
	store := new(MockStructuredStore)
	held := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	store.On("ContentByCategory", mock.Anything, "tenant-1").
		Return([]CategoryCount{{Category: "blog", Count: 4}}, nil)
	store.On("RecentMeetings", mock.Anything, "tenant-1", structuredFetchLimit).
		Return([]MeetingSummary{{Title: "Weekly sync", HeldAt: held, Summary: "Discussed launch."}}, nil)
	store.On("RecentInvoices", mock.Anything, "tenant-1", structuredFetchLimit).
		Return([]InvoiceSummary{{Number: "INV-7", Status: "paid", AmountCents: 125050, IssuedAt: held}}, nil)

	registry := NewFetcherRegistry(store)
	results := registry.FetchAll(context.Background(),
		[]string{domain.LabelContentByCategory, domain.LabelMeetingsList, domain.LabelInvoicesList},
		"tenant-1", ScopeHint{})

	require.Len(t, results, 3)
	assert.Equal(t, domain.LabelContentByCategory, results[0].Label)
	assert.Contains(t, results[0].Text, "- blog: 4")
	assert.Contains(t, results[1].Text, "Weekly sync (2026-03-10): Discussed launch.")
	assert.Contains(t, results[2].Text, "INV-7 [paid] $1250.50 issued 2026-03-10")
}

func TestFetchAll_IsolatesFailures(t *testing.T) {
	store := new(MockStructuredStore)
	store.On("ContentByCategory", mock.Anything, "tenant-1").Return(nil, errors.New("table missing"))
	store.On("OpenTasks", mock.Anything, "tenant-1", structuredFetchLimit).
		Return([]TaskSummary{{Name: "Write brief", Status: "in_progress"}}, nil)

	registry := NewFetcherRegistry(store)
	results := registry.FetchAll(context.Background(),
		[]string{domain.LabelContentByCategory, domain.LabelTasksList},
		"tenant-1", ScopeHint{})

	require.Len(t, results, 1)
	assert.Equal(t, domain.LabelTasksList, results[0].Label)
	assert.Contains(t, results[0].Text, "- Write brief [in_progress]")
}

func TestFetchAll_SkipsUnknownLabels(t *testing.T) {
	store := new(MockStructuredStore)
	registry := NewFetcherRegistry(store)

	results := registry.FetchAll(context.Background(), []string{"customers_list"}, "tenant-1", ScopeHint{})

	assert.Empty(t, results)
}

func TestFetchAll_EmptyDataProducesNoResult(t *testing.T) {
	store := new(MockStructuredStore)
	store.On("ContractOverview", mock.Anything, "tenant-1").Return(nil, nil)

	registry := NewFetcherRegistry(store)
	results := registry.FetchAll(context.Background(), []string{domain.LabelContractOverview}, "tenant-1", ScopeHint{})

	assert.Empty(t, results)
}

func TestFetchAll_ScopeHintSkipsOutOfScopeFetchers(t *testing.T) {
	store := new(MockStructuredStore)
	registry := NewFetcherRegistry(store)

	results := registry.FetchAll(context.Background(),
		[]string{domain.LabelContentByCategory, domain.LabelMeetingsList},
		"tenant-1", ScopeHint{SourceTypes: []domain.SourceType{domain.SourceTypeNote}})

	assert.Empty(t, results)
	store.AssertNotCalled(t, "ContentByCategory", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "RecentMeetings", mock.Anything, mock.Anything, mock.Anything)
}

func TestFetchAll_ContractOverviewIncludesRenewal(t *testing.T) {
	store := new(MockStructuredStore)
	started := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	renews := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store.On("ContractOverview", mock.Anything, "tenant-1").
		Return(&ContractOverview{Name: "Retainer", Status: "active", StartedAt: started, RenewsAt: &renews}, nil)

	registry := NewFetcherRegistry(store)
	results := registry.FetchAll(context.Background(), []string{domain.LabelContractOverview}, "tenant-1", ScopeHint{})

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "Contract: Retainer [active], started 2025-06-01, renews 2026-06-01")
}
