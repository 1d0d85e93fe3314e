package relayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/cccp-relayer/pkg/db"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

// Observation classifies a newly seen bridge request status against the last one.
type Observation uint8

const (
	// ObservationForward is a status the request lifecycle reaches from the
	// last seen one.
	ObservationForward Observation = iota + 1
	// ObservationDuplicate repeats the last seen status.
	ObservationDuplicate
	// ObservationRegression cannot follow the last seen status.
	ObservationRegression
)

func (o Observation) String() string {
	switch o {
	case ObservationForward:
		return "forward"
	case ObservationDuplicate:
		return "duplicate"
	case ObservationRegression:
		return "regression"
	default:
		return fmt.Sprintf("Observation(%d)", uint8(o))
	}
}

// Classify compares next against the last seen status of a request using
// the lifecycle order, not the code order: Executed (3) follows Accepted (5).
func Classify(last, next primitives.SocketEventStatus) Observation {
	switch {
	case next == last:
		return ObservationDuplicate
	case last.Reaches(next):
		return ObservationForward
	default:
		return ObservationRegression
	}
}

const trackerStripes = 64

// StatusTracker keeps the last seen status of every bridge request. Updates
// of one request id are serialised; different ids proceed in parallel.
type StatusTracker struct {
	stripes [trackerStripes]sync.Mutex

	mu   sync.RWMutex
	last map[common.Hash]primitives.SocketEventStatus

	store db.SocketEventStore
}

// NewStatusTracker creates a tracker backed by store. store may be nil.
func NewStatusTracker(store db.SocketEventStore) *StatusTracker {
	return &StatusTracker{
		last:  make(map[common.Hash]primitives.SocketEventStatus),
		store: store,
	}
}

// Observe classifies event. For a forward observation onForward runs under
// the request lock and the status is recorded only if it succeeds, so a
// failed relay is retried when the event is seen again. onForward may be nil.
func (t *StatusTracker) Observe(ctx context.Context, event *db.SocketEvent, onForward func(context.Context) error) (Observation, error) {
	lock := &t.stripes[event.RequestHash[common.HashLength-1]%trackerStripes]
	lock.Lock()
	defer lock.Unlock()

	last, known, err := t.lookup(ctx, event.RequestHash)
	if err != nil {
		return 0, err
	}
	if known {
		if obs := Classify(last, event.Status); obs != ObservationForward {
			return obs, nil
		}
	}

	if onForward != nil {
		if err := onForward(ctx); err != nil {
			return ObservationForward, err
		}
	}

	if t.store != nil {
		if _, err := t.store.UpsertSocketEvent(ctx, event); err != nil {
			return 0, err
		}
	}

	t.mu.Lock()
	if event.Status.IsTerminal() {
		// terminal requests are answered from the store from now on
		delete(t.last, event.RequestHash)
	} else {
		t.last[event.RequestHash] = event.Status
	}
	t.mu.Unlock()

	return ObservationForward, nil
}

// Last returns the last recorded status of a request held in memory.
func (t *StatusTracker) Last(requestHash common.Hash) (primitives.SocketEventStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, ok := t.last[requestHash]
	return status, ok
}

func (t *StatusTracker) lookup(ctx context.Context, requestHash common.Hash) (primitives.SocketEventStatus, bool, error) {
	if status, ok := t.Last(requestHash); ok {
		return status, true, nil
	}
	if t.store == nil {
		return 0, false, nil
	}
	stored, err := t.store.GetSocketEvent(ctx, requestHash)
	if errors.Is(err, db.ErrSocketEventNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return stored.Status, true, nil
}

// AuthoritySet is the committed authority set of a round.
type AuthoritySet struct {
	Round       *big.Int
	Authorities []common.Address
}

// RoundUpTracker records the status observed for each authority round and
// the latest committed authority set. Committed is only ever taken from a
// contract emitted status.
type RoundUpTracker struct {
	mu        sync.RWMutex
	rounds    map[string]primitives.RoundUpEventStatus
	delivered map[string]bool
	current   *AuthoritySet
}

// NewRoundUpTracker creates an empty tracker.
func NewRoundUpTracker() *RoundUpTracker {
	return &RoundUpTracker{
		rounds:    make(map[string]primitives.RoundUpEventStatus),
		delivered: make(map[string]bool),
	}
}

// Observe records status for round and reports whether it is new information.
func (t *RoundUpTracker) Observe(round *big.Int, status primitives.RoundUpEventStatus, authorities []common.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := round.String()
	prev, seen := t.rounds[key]
	if seen && (prev == status || prev == primitives.NextAuthorityCommitted) {
		return false
	}
	t.rounds[key] = status
	t.delivered[key] = false

	if status == primitives.NextAuthorityCommitted && (t.current == nil || round.Cmp(t.current.Round) > 0) {
		t.current = &AuthoritySet{
			Round:       new(big.Int).Set(round),
			Authorities: append([]common.Address(nil), authorities...),
		}
	}
	return true
}

// Pending reports whether status is the recorded status of round and its
// delivery has not completed yet.
func (t *RoundUpTracker) Pending(round *big.Int, status primitives.RoundUpEventStatus) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key := round.String()
	prev, ok := t.rounds[key]
	return ok && prev == status && !t.delivered[key]
}

// MarkDelivered records that the current status of round was delivered.
func (t *RoundUpTracker) MarkDelivered(round *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := round.String()
	if _, ok := t.rounds[key]; ok {
		t.delivered[key] = true
	}
}

// Status returns the recorded status of a round.
func (t *RoundUpTracker) Status(round *big.Int) (primitives.RoundUpEventStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, ok := t.rounds[round.String()]
	return status, ok
}

// Current returns a copy of the latest committed authority set.
func (t *RoundUpTracker) Current() (AuthoritySet, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return AuthoritySet{}, false
	}
	return AuthoritySet{
		Round:       new(big.Int).Set(t.current.Round),
		Authorities: append([]common.Address(nil), t.current.Authorities...),
	}, true
}
