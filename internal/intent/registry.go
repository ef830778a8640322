// Package intent implements the fingerprint-keyed idempotency registry for
// prospective trades, grounded in the bot runner's original intent tracker.
package intent

import (
	"sync"
	"time"

	"botfleet/internal/core"
	apperrors "botfleet/pkg/errors"

	"github.com/google/uuid"
)

const (
	equivalenceWindow = 5 * time.Minute
	staleThreshold    = 60 * time.Second
)

type entry struct {
	intent    *core.TradeIntent
	createdAt time.Time
}

// Registry tracks in-flight and recently finalized trade intents for a
// single worker. One mutex guards the map; TryCreate is the sole
// check-and-insert critical section.
type Registry struct {
	mu      sync.Mutex
	intents map[string]*entry
	logger  core.ILogger
}

// New creates an empty Registry.
func New(logger core.ILogger) *Registry {
	return &Registry{
		intents: make(map[string]*entry),
		logger:  logger.WithField("component", "intent_registry"),
	}
}

// TryCreate implements the five-branch critical section:
// (a) search for a fingerprint-equivalent entry within the equivalence window;
// (b) a terminal match (Confirmed/Failed) is returned as AlreadyExists;
// (c) a stale non-terminal match (older than staleThreshold) is also
//
//	AlreadyExists, to avoid duplicate attempts caused by a hang;
//
// (d) a fresh, still-pending match means skip this tick entirely;
// (e) otherwise a new intent is inserted in state Created.
func (r *Registry) TryCreate(fp core.Fingerprint, intent *core.TradeIntent) (created *core.TradeIntent, existingID string, skip bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, e := range r.intents {
		if !fingerprintMatches(fp, e.intent) {
			continue
		}
		if now.Sub(e.createdAt) >= equivalenceWindow {
			continue
		}
		if e.intent.State.IsTerminal() {
			return nil, id, true
		}
		if now.Sub(e.createdAt) > staleThreshold {
			r.logger.Warn("found stale pending intent", "intent_id", id)
			return nil, id, true
		}
		return nil, "", true
	}

	intent.ID = uuid.New().String()
	intent.State = core.IntentCreated
	intent.StrategyFingerprint = fp.StrategyFingerprint
	intent.CreatedAt = now
	intent.UpdatedAt = now
	r.intents[intent.ID] = &entry{intent: intent, createdAt: now}
	r.logger.Debug("created trade intent", "intent_id", intent.ID, "bot_id", fp.BotID)
	return intent, "", false
}

func fingerprintMatches(fp core.Fingerprint, intent *core.TradeIntent) bool {
	return intent.BotID == fp.BotID &&
		intent.InputMint == fp.InputMint &&
		intent.OutputMint == fp.OutputMint &&
		intent.InAmountRaw == fp.InAmountRaw &&
		intent.Mode == fp.Mode &&
		intent.StrategyFingerprint == fp.StrategyFingerprint
}

// UpdateState transitions an intent's state, applying any additional field
// mutations (signature, out_amount, failure stage/reason) atomically.
func (r *Registry) UpdateState(id string, state core.IntentState, mutate func(*core.TradeIntent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.intents[id]
	if !ok {
		return apperrors.ErrIntentNotFound
	}
	e.intent.State = state
	e.intent.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(e.intent)
	}
	return nil
}

// Get returns a copy of the intent, if present.
func (r *Registry) Get(id string) (*core.TradeIntent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.intents[id]
	if !ok {
		return nil, false
	}
	cp := *e.intent
	return &cp, true
}

// Cleanup removes entries older than ttl seconds and returns the count removed.
func (r *Registry) Cleanup(ttl int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(ttl) * time.Second)
	removed := 0
	for id, e := range r.intents {
		if e.createdAt.Before(cutoff) {
			delete(r.intents, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("cleaned up expired intents", "count", removed)
	}
	return removed
}
