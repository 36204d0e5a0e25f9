package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/gridsim/core/ledger/store"
	"github.com/kilianp07/gridsim/core/logger"
)

// balanceTolerance absorbs float noise when comparing balances.
const balanceTolerance = 1e-9

// Book is the in-process token ledger. It implements Recorder.
type Book struct {
	mu            sync.Mutex
	roles         map[Role]map[string]struct{}
	registrations map[string]map[string]struct{}
	balances      map[string]float64
	supply        float64

	store store.Store
	runID string
	now   func() time.Time
	log   logger.Logger
}

// NewBook returns an empty ledger persisting to st. A nil store keeps entries
// in memory.
func NewBook(st store.Store, runID string, log logger.Logger) *Book {
	if st == nil {
		st = store.NewMemoryStore()
	}
	roles := make(map[Role]map[string]struct{}, len(Roles))
	for _, r := range Roles {
		roles[r] = make(map[string]struct{})
	}
	return &Book{
		roles:         roles,
		registrations: make(map[string]map[string]struct{}),
		balances:      make(map[string]float64),
		store:         st,
		runID:         runID,
		now:           time.Now,
		log:           logger.OrNop(log),
	}
}

// RunID returns the run identifier stamped on every entry.
func (b *Book) RunID() string { return b.runID }

// Store returns the backing store.
func (b *Book) Store() store.Store { return b.store }

// Authorize grants role to id.
func (b *Book) Authorize(role Role, id string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidEvent, role)
	}
	if id == "" {
		return fmt.Errorf("%w: empty account id", ErrInvalidEvent)
	}
	b.mu.Lock()
	b.roles[role][id] = struct{}{}
	b.mu.Unlock()
	b.log.Debugf("ledger: authorized %s as %s", id, role)
	return nil
}

// Revoke removes role from id. Revoking an absent role is a no-op.
func (b *Book) Revoke(role Role, id string) {
	b.mu.Lock()
	if set, ok := b.roles[role]; ok {
		delete(set, id)
	}
	b.mu.Unlock()
}

// Authorized reports whether id holds role.
func (b *Book) Authorized(role Role, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasRole(role, id)
}

func (b *Book) hasRole(role Role, id string) bool {
	_, ok := b.roles[role][id]
	return ok
}

// RegisterConsumer lets substation distribute to consumer. The substation must
// already be authorized.
func (b *Book) RegisterConsumer(substation, consumer string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasRole(RoleSubstation, substation) {
		return fmt.Errorf("%w: %s is not a substation", ErrUnauthorized, substation)
	}
	set, ok := b.registrations[substation]
	if !ok {
		set = make(map[string]struct{})
		b.registrations[substation] = set
	}
	set[consumer] = struct{}{}
	return nil
}

// UnregisterConsumer removes a registration.
func (b *Book) UnregisterConsumer(substation, consumer string) {
	b.mu.Lock()
	delete(b.registrations[substation], consumer)
	b.mu.Unlock()
}

// Balance returns the token balance of id.
func (b *Book) Balance(id string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[id]
}

// Balances returns a snapshot of every non-zero balance.
func (b *Book) Balances() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(b.balances))
	for id, v := range b.balances {
		if v != 0 {
			out[id] = v
		}
	}
	return out
}

// Supply returns the total number of tokens in circulation.
func (b *Book) Supply() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.supply
}

// Record validates ev against the roles and balances, persists it, and only
// then applies it. A rejected or unpersisted event leaves the book unchanged.
func (b *Book) Record(ctx context.Context, ev Event) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	}
	if ev.Amount < 0 || ev.Loss < 0 {
		return fmt.Errorf("%w: negative amount in %s event", ErrInvalidEvent, ev.Kind)
	}
	if ev.From == "" {
		return fmt.Errorf("%w: %s event without sender", ErrInvalidEvent, ev.Kind)
	}
	if ev.Kind != KindConsumption && ev.To == "" {
		return fmt.Errorf("%w: %s event without recipient", ErrInvalidEvent, ev.Kind)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if role := originRole(ev.Kind); !b.hasRole(role, ev.From) {
		return fmt.Errorf("%w: %s is not an authorized %s", ErrUnauthorized, ev.From, role)
	}

	delta := make(map[string]float64, 2)
	var supplyDelta float64
	switch ev.Kind {
	case KindGeneration:
		delta[ev.To] += ev.Amount
		supplyDelta = ev.Amount
	case KindTransmission:
		if err := b.ensureBalance(ev.From, ev.Amount+ev.Loss); err != nil {
			return err
		}
		delta[ev.From] -= ev.Amount + ev.Loss
		delta[ev.To] += ev.Amount
		supplyDelta = -ev.Loss
	case KindDistribution:
		if _, ok := b.registrations[ev.From][ev.To]; !ok {
			return fmt.Errorf("%w: %s -> %s", ErrNotRegistered, ev.From, ev.To)
		}
		if err := b.ensureBalance(ev.From, ev.Amount); err != nil {
			return err
		}
		delta[ev.From] -= ev.Amount
		delta[ev.To] += ev.Amount
	case KindConsumption:
		if err := b.ensureBalance(ev.From, ev.Amount); err != nil {
			return err
		}
		delta[ev.From] -= ev.Amount
		supplyDelta = -ev.Amount
	}

	after := make(map[string]float64, len(delta))
	for id, d := range delta {
		after[id] = settle(b.balances[id] + d)
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = b.now()
	}
	entry := store.Entry{
		ID:        uuid.NewString(),
		RunID:     b.runID,
		Step:      ev.Step,
		Kind:      ev.Kind.String(),
		From:      ev.From,
		To:        ev.To,
		Amount:    ev.Amount,
		Loss:      ev.Loss,
		Timestamp: ts,
		Balances:  after,
	}
	if err := b.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	for id, v := range after {
		b.balances[id] = v
	}
	b.supply = settle(b.supply + supplyDelta)
	b.log.Debugw("ledger event", map[string]any{
		"kind":   ev.Kind.String(),
		"from":   ev.From,
		"to":     ev.To,
		"amount": ev.Amount,
		"step":   ev.Step,
	})
	return nil
}

func (b *Book) ensureBalance(id string, need float64) error {
	if have := b.balances[id]; have+balanceTolerance < need {
		return fmt.Errorf("%w: %s holds %.3f, needs %.3f", ErrInsufficientBalance, id, have, need)
	}
	return nil
}

// settle snaps values within tolerance of zero back to zero.
func settle(v float64) float64 {
	if v < balanceTolerance && v > -balanceTolerance {
		return 0
	}
	return v
}
