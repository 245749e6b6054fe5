package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

func testModels() []domain.Model {
	return []domain.Model{
		{ID: "alpha", Class: domain.ClassFast, CostPer1K: 0.2, Enabled: true, TimeoutSec: 10},
		{ID: "beta", Class: domain.ClassAdvanced, CostPer1K: 0.5, Enabled: true, TimeoutSec: 20},
		{ID: "gamma", Class: domain.ClassFast, CostPer1K: 0.2, Enabled: true, TimeoutSec: 30},
		{ID: "delta", Class: domain.ClassFast, CostPer1K: 0.1, Enabled: false, TimeoutSec: 30},
	}
}

func TestNew_NoEnabledModels(t *testing.T) {
	_, err := New([]domain.Model{
		{ID: "off", Class: domain.ClassFast, Enabled: false},
	})
	if !errors.Is(err, domain.ErrNoEnabledModels) {
		t.Fatalf("expected ErrNoEnabledModels, got %v", err)
	}
}

func TestCheapestEnabled_StableTieBreak(t *testing.T) {
	c, err := New(testModels())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// delta is cheaper but disabled; alpha and gamma tie at 0.2 and alpha
	// comes first in catalog order.
	for i := 0; i < 10; i++ {
		m, err := c.CheapestEnabled()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.ID != "alpha" {
			t.Fatalf("run %d: cheapest = %s, want alpha", i, m.ID)
		}
	}
}

func TestFirstPreferred(t *testing.T) {
	c, _ := New(testModels())

	tests := []struct {
		name      string
		preferred []string
		class     domain.ModelClass
		fallback  string
		want      string
	}{
		{"first matching preference wins", []string{"gamma", "alpha"}, domain.ClassFast, "alpha", "gamma"},
		{"wrong class skipped", []string{"beta"}, domain.ClassFast, "alpha", "alpha"},
		{"disabled skipped", []string{"delta"}, domain.ClassFast, "alpha", "alpha"},
		{"empty preferences use fallback", nil, domain.ClassAdvanced, "beta", "beta"},
		{"unknown preference falls through", []string{"nope"}, domain.ClassFast, "gamma", "gamma"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := c.FirstPreferred(tt.preferred, tt.class, tt.fallback)
			if m.ID != tt.want {
				t.Errorf("FirstPreferred = %s, want %s", m.ID, tt.want)
			}
		})
	}
}

func TestFirstPreferred_UnknownFallbackStillResolves(t *testing.T) {
	c, _ := New(testModels())

	m := c.FirstPreferred(nil, domain.ClassAdvanced, "external-model")
	if m.ID != "external-model" {
		t.Fatalf("fallback id = %s, want external-model", m.ID)
	}
	if m.Timeout != 30*time.Second {
		t.Fatalf("fallback timeout = %v, want 30s", m.Timeout)
	}
}

func TestEnabled_PreservesCatalogOrder(t *testing.T) {
	c, _ := New(testModels())

	enabled := c.Enabled()
	want := []string{"alpha", "beta", "gamma"}
	if len(enabled) != len(want) {
		t.Fatalf("enabled count = %d, want %d", len(enabled), len(want))
	}
	for i, id := range want {
		if enabled[i].ID != id {
			t.Errorf("enabled[%d] = %s, want %s", i, enabled[i].ID, id)
		}
	}
}

func TestTimeoutFor(t *testing.T) {
	c, _ := New(testModels())

	if got := c.TimeoutFor("alpha"); got != 10*time.Second {
		t.Errorf("TimeoutFor(alpha) = %v, want 10s", got)
	}
	if got := c.TimeoutFor("unknown"); got != 30*time.Second {
		t.Errorf("TimeoutFor(unknown) = %v, want 30s", got)
	}
}

func TestDefault_HasEnabledModels(t *testing.T) {
	c := Default()
	if len(c.Enabled()) == 0 {
		t.Fatal("default catalog has no enabled models")
	}
	if _, ok := c.Get("gpt-4o-mini"); !ok {
		t.Fatal("default catalog missing gpt-4o-mini")
	}
}
