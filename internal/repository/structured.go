package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tpelligrinomid/midrag/internal/service"
)

// StructuredRepository runs read-only queries against the platform's business
// tables. It never writes: the tables are owned by other systems and this
// repository only summarizes them for answering questions.
type StructuredRepository struct {
	pool *pgxpool.Pool
}

func NewStructuredRepository(pool *pgxpool.Pool) *StructuredRepository {
	return &StructuredRepository{pool: pool}
}

// ContentByCategory counts content items per category for a tenant.
func (r *StructuredRepository) ContentByCategory(ctx context.Context, tenantID string) ([]service.CategoryCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(category, 'uncategorized'), COUNT(*)
		FROM content_items
		WHERE tenant_id = $1
		GROUP BY category
		ORDER BY COUNT(*) DESC, category
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query content by category: %w", err)
	}
	defer rows.Close()

	var counts []service.CategoryCount
	for rows.Next() {
		var c service.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// ContentByStatus counts content items per workflow status for a tenant.
func (r *StructuredRepository) ContentByStatus(ctx context.Context, tenantID string) ([]service.StatusCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM content_items
		WHERE tenant_id = $1
		GROUP BY status
		ORDER BY COUNT(*) DESC, status
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query content by status: %w", err)
	}
	defer rows.Close()

	var counts []service.StatusCount
	for rows.Next() {
		var c service.StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// RecentMeetings lists the tenant's most recent meetings, newest first.
func (r *StructuredRepository) RecentMeetings(ctx context.Context, tenantID string, limit int) ([]service.MeetingSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT title, held_at, COALESCE(summary, '')
		FROM meetings
		WHERE tenant_id = $1
		ORDER BY held_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query meetings: %w", err)
	}
	defer rows.Close()

	var meetings []service.MeetingSummary
	for rows.Next() {
		var m service.MeetingSummary
		if err := rows.Scan(&m.Title, &m.HeldAt, &m.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// OpenTasks lists the tenant's unfinished tasks, soonest due first. Tasks
// without a due date sort last.
func (r *StructuredRepository) OpenTasks(ctx context.Context, tenantID string, limit int) ([]service.TaskSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, status, due_at
		FROM tasks
		WHERE tenant_id = $1 AND status NOT IN ('completed', 'cancelled')
		ORDER BY due_at ASC NULLS LAST, created_at ASC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []service.TaskSummary
	for rows.Next() {
		var t service.TaskSummary
		var dueAt pgtype.Timestamptz
		if err := rows.Scan(&t.Name, &t.Status, &dueAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if dueAt.Valid {
			due := dueAt.Time
			t.DueAt = &due
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// RecentInvoices lists the tenant's most recent invoices, newest first.
func (r *StructuredRepository) RecentInvoices(ctx context.Context, tenantID string, limit int) ([]service.InvoiceSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT number, status, amount_cents, issued_at
		FROM invoices
		WHERE tenant_id = $1
		ORDER BY issued_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []service.InvoiceSummary
	for rows.Next() {
		var inv service.InvoiceSummary
		if err := rows.Scan(&inv.Number, &inv.Status, &inv.AmountCents, &inv.IssuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ContractOverview returns the tenant's active contract, or nil when the
// tenant has none.
func (r *StructuredRepository) ContractOverview(ctx context.Context, tenantID string) (*service.ContractOverview, error) {
	var c service.ContractOverview
	var renewsAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, `
		SELECT name, status, started_at, renews_at
		FROM contracts
		WHERE tenant_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, tenantID).Scan(&c.Name, &c.Status, &c.StartedAt, &renewsAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query contract: %w", err)
	}
	if renewsAt.Valid {
		renews := renewsAt.Time
		c.RenewsAt = &renews
	}
	return &c, nil
}
