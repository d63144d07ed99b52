package services

import (
	"context"
	"crypto/subtle"
	"sync"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
	"sfucore/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// ThrottleCoordinator implements ports.ThrottleCoordinator (spec.md §4.6):
// a shared-secret-gated, FIFO-serialized front end over the process-wide
// network shaper. Serialization reuses the same serialQueue primitive the
// room-creation scheduler uses, since both are "one mutating operation at
// a time" problems. Shaper calls run through a circuit breaker, adapted
// from reliability/mesh_service_wrapper.go's per-dependency breaker, so a
// broken `tc` binary fails fast instead of being retried into every
// subsequent applyNetworkThrottle call.
type ThrottleCoordinator struct {
	mu     sync.Mutex
	state  domain.ThrottleState
	secret string

	shaper  ports.ThrottleShaper
	breaker *circuitbreaker.CircuitBreaker
	queue   *serialQueue
	logger  *zap.SugaredLogger
}

func NewThrottleCoordinator(shaper ports.ThrottleShaper, secret string, logger *zap.SugaredLogger) *ThrottleCoordinator {
	t := &ThrottleCoordinator{
		shaper:  shaper,
		secret:  secret,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		queue:   newSerialQueue(),
		logger:  logger,
	}
	go t.queue.run()
	return t
}

func (t *ThrottleCoordinator) checkSecret(candidate string) error {
	if t.secret == "" {
		return domain.ErrForbiddenSecret
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(t.secret)) != 1 {
		return domain.ErrForbiddenSecret
	}
	return nil
}

// throttleStopScopes are the two scopes spec.md §4.6's stop operation
// invokes the shaper against unconditionally: "default" for the shaper's
// normal qdisc and "localhost" so loopback traffic between same-host
// processes is cleared too.
var throttleStopScopes = []string{"default", "localhost"}

// doubleStop invokes the shaper's stop against both scopes, continuing
// past a failure on the first so the second scope is always attempted,
// and returns the last error encountered (spec.md §4.6 "invoke the
// shaper's stop twice (default and localhost-scope)... surface the last
// error").
func (t *ThrottleCoordinator) doubleStop(ctx context.Context) error {
	var lastErr error
	for _, scope := range throttleStopScopes {
		if err := t.breaker.Execute(ctx, func() error { return t.shaper.Stop(ctx, scope) }); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Apply enables the shaper with the given parameters, serialized against
// every other Apply/Stop (spec.md §4.6 "at most one shaping operation in
// flight at a time"). If throttling is already enabled, it is stopped
// first before the new configuration starts (§4.6 "if already enabled,
// stop first; then start(opts)").
func (t *ThrottleCoordinator) Apply(ctx context.Context, opts domain.ThrottleOptions) error {
	if err := t.checkSecret(opts.Secret); err != nil {
		return err
	}

	type result struct{ err error }
	resCh := make(chan result, 1)
	err := t.queue.push(func() {
		prev := t.snapshot()
		if prev.Enabled {
			t.mu.Lock()
			t.state = domain.ThrottleState{}
			t.mu.Unlock()
			if stopErr := t.doubleStop(ctx); stopErr != nil {
				t.mu.Lock()
				t.state = prev
				t.mu.Unlock()
				resCh <- result{stopErr}
				return
			}
		}

		if err := t.breaker.Execute(ctx, func() error { return t.shaper.Start(ctx, opts) }); err != nil {
			resCh <- result{err}
			return
		}
		t.mu.Lock()
		t.state = domain.ThrottleState{Enabled: true, EnabledByRoom: opts.RoomID}
		t.mu.Unlock()
		resCh <- result{nil}
	})
	if err != nil {
		return err
	}
	return (<-resCh).err
}

// Stop disables the shaper. secret is the explicit, out-of-band secret an
// API caller supplies (spec.md §4.6 "mark disabled, then invoke the
// shaper's stop twice").
func (t *ThrottleCoordinator) Stop(ctx context.Context, secret string) error {
	if err := t.checkSecret(secret); err != nil {
		return err
	}

	type result struct{ err error }
	resCh := make(chan result, 1)
	err := t.queue.push(func() {
		prev := t.snapshot()
		t.mu.Lock()
		t.state = domain.ThrottleState{}
		t.mu.Unlock()

		if stopErr := t.doubleStop(ctx); stopErr != nil {
			t.mu.Lock()
			t.state = prev
			t.mu.Unlock()
			resCh <- result{stopErr}
			return
		}
		resCh <- result{nil}
	})
	if err != nil {
		return err
	}
	return (<-resCh).err
}

// RoomClosed issues an implicit stop if the closing room was the one that
// last enabled throttling (spec.md §4.6 "throttling never outlives the
// room that enabled it"). Failures restore the prior enabled state rather
// than silently reporting stopped, since the shaper itself did not change.
func (t *ThrottleCoordinator) RoomClosed(ctx context.Context, roomID domain.RoomID) {
	t.mu.Lock()
	shouldStop := t.state.Enabled && t.state.EnabledByRoom == roomID
	t.mu.Unlock()
	if !shouldStop {
		return
	}

	_ = t.queue.push(func() {
		prev := t.snapshot()
		t.mu.Lock()
		t.state = domain.ThrottleState{}
		t.mu.Unlock()

		if err := t.doubleStop(ctx); err != nil {
			t.logger.Warnw("implicit throttle stop failed, restoring state", "room_id", roomID, "error", err)
			t.mu.Lock()
			t.state = prev
			t.mu.Unlock()
			return
		}
	})
}

func (t *ThrottleCoordinator) State() domain.ThrottleState {
	return t.snapshot()
}

func (t *ThrottleCoordinator) snapshot() domain.ThrottleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
