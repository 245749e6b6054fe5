// Package cost accounts for upstream spend. Pricing comes from the model
// catalog's cost-per-1K field; records accumulate per user and feed the
// /api/usage summary and Prometheus counters.
package cost

import (
	"context"
	"sync"
	"time"

	"github.com/emreacar/prompt-optimizer/internal/catalog"
	"github.com/emreacar/prompt-optimizer/internal/domain"
	"github.com/emreacar/prompt-optimizer/internal/metrics"
)

type UsageRecord struct {
	UserID       string    `json:"user_id"`
	RequestID    string    `json:"request_id"`
	Strategy     string    `json:"strategy"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// Summary aggregates one user's usage since a cutoff.
type Summary struct {
	UserID       string  `json:"user_id"`
	Requests     int     `json:"requests"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

type Tracker interface {
	Record(ctx context.Context, record UsageRecord) error
	UserUsage(ctx context.Context, userID string, since time.Time) ([]UsageRecord, error)
	UserSummary(ctx context.Context, userID string, since time.Time) (Summary, error)
}

// Cost estimates spend for one call using the catalog's blended per-1K
// rate. Unknown models cost zero rather than failing the request.
func Cost(cat *catalog.Catalog, model string, usage domain.Usage) float64 {
	m, ok := cat.Get(model)
	if !ok {
		return 0
	}
	return float64(usage.TotalTokens) / 1000 * m.CostPer1K
}

type InMemoryTracker struct {
	mu      sync.RWMutex
	records []UsageRecord
}

func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{}
}

func (t *InMemoryTracker) Record(ctx context.Context, record UsageRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	t.mu.Lock()
	t.records = append(t.records, record)
	t.mu.Unlock()

	metrics.RecordCost(record.Model, record.CostUSD)
	return nil
}

func (t *InMemoryTracker) UserUsage(ctx context.Context, userID string, since time.Time) ([]UsageRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []UsageRecord
	for _, r := range t.records {
		if r.UserID == userID && r.Timestamp.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *InMemoryTracker) UserSummary(ctx context.Context, userID string, since time.Time) (Summary, error) {
	records, err := t.UserUsage(ctx, userID, since)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{UserID: userID}
	for _, r := range records {
		s.Requests++
		s.InputTokens += r.InputTokens
		s.OutputTokens += r.OutputTokens
		s.TotalCostUSD += r.CostUSD
	}
	return s, nil
}
