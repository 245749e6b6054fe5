// Package circuitbreaker guards upstream models that fail repeatedly. A
// breaker that trips makes calls to that model fail fast instead of burning
// the caller's deadline on a backend that is known to be down.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes in half-open before closing
	Cooldown         time.Duration // open duration before probing again
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// Breaker tracks failures for a single upstream model.
type Breaker struct {
	mu          sync.RWMutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	cfg         Config
}

func New(cfg Config) *Breaker {
	return &Breaker{state: StateClosed, cfg: cfg}
}

// Allow returns ErrBreakerOpen while the breaker is open and the cooldown has
// not elapsed. After the cooldown one probe transitions it to half-open.
func (b *Breaker) Allow() error {
	b.mu.RLock()
	state := b.state
	lastFailure := b.lastFailure
	b.mu.RUnlock()

	if state != StateOpen {
		return nil
	}
	if time.Since(lastFailure) <= b.cfg.Cooldown {
		return domain.ErrBreakerOpen
	}

	b.mu.Lock()
	if b.state == StateOpen {
		b.state = StateHalfOpen
		b.successes = 0
	}
	b.mu.Unlock()
	return nil
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successes = 0
	}
}

func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Manager lazily creates one breaker per model id.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

func (m *Manager) Get(modelID string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[modelID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[modelID]; ok {
		return b
	}
	b = New(m.cfg)
	m.breakers[modelID] = b
	return b
}

// States reports each known model's breaker state, for the health endpoint.
func (m *Manager) States() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]string, len(m.breakers))
	for id, b := range m.breakers {
		states[id] = b.State().String()
	}
	return states
}
