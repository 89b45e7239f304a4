// Package metering implements the credit deduction engine: one recurring
// timer per user with an active session, deducting one credit per tick.
//
// In-memory timers are a local optimization only. The active-session
// registry is the correctness mechanism: every tick re-checks the registry
// before touching the ledger, so a duplicate or orphaned timer (from
// another process, or a stale schedule after restart) self-extinguishes
// within one tick period instead of double-deducting.
package metering

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/creditflow/creditflow/internal/clock"
	"github.com/creditflow/creditflow/internal/config"
	ledgerdomain "github.com/creditflow/creditflow/internal/ledger/domain"
	"github.com/creditflow/creditflow/internal/metrics"
	"github.com/creditflow/creditflow/internal/notify"
	"github.com/creditflow/creditflow/internal/registry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Registry is the subset of the active-session registry the engine needs.
type Registry interface {
	Put(ctx context.Context, userID int64, handle registry.Handle) error
	Get(ctx context.Context, userID int64) (*registry.Handle, error)
	Delete(ctx context.Context, userID int64) error
}

// Publisher pushes balance and termination events onto the notification
// channel.
type Publisher interface {
	PublishCreditUpdate(ctx context.Context, userID int64, credits int64)
	PublishSessionEnd(ctx context.Context, userID int64)
}

type userTimer struct {
	sessionID snowflake.ID
	cancel    context.CancelFunc
}

type Engine struct {
	mu     sync.Mutex
	timers map[int64]*userTimer

	store     ledgerdomain.Store
	registry  Registry
	publisher Publisher
	clock     clock.Clock
	log       *zap.Logger
	metrics   *metrics.Metering
	period    time.Duration
}

type Params struct {
	fx.In

	Store     ledgerdomain.Store
	Registry  *registry.Registry
	Publisher *notify.Publisher
	Clock     clock.Clock
	Log       *zap.Logger
	Metrics   *metrics.Metering `optional:"true"`
	Config    config.Config
}

func New(p Params) *Engine {
	return NewEngine(p.Store, p.Registry, p.Publisher, p.Clock, p.Log, p.Metrics, p.Config.TickPeriod)
}

// NewEngine constructs an engine with explicit collaborators. The fx
// constructor delegates here; tests use it directly with fakes.
func NewEngine(
	store ledgerdomain.Store,
	reg Registry,
	pub Publisher,
	clk clock.Clock,
	log *zap.Logger,
	m *metrics.Metering,
	period time.Duration,
) *Engine {
	if period <= 0 {
		period = 6 * time.Second
	}
	return &Engine{
		timers:    make(map[int64]*userTimer),
		store:     store,
		registry:  reg,
		publisher: pub,
		clock:     clk,
		log:       log.Named("metering"),
		metrics:   m,
		period:    period,
	}
}

// Start begins deducting for the user's session. Any prior deduction loop
// for the user is stopped first, so after Start returns exactly one timer
// is live for the user in this process. The caller is responsible for
// having verified a positive balance and created the session row.
func (e *Engine) Start(ctx context.Context, userID int64, sessionID snowflake.ID) error {
	if err := e.Stop(ctx, userID); err != nil {
		return err
	}

	handle := registry.Handle{
		SessionID: sessionID.Int64(),
		StartedAt: e.clock.Now().UnixMilli(),
	}
	if err := e.registry.Put(ctx, userID, handle); err != nil {
		return err
	}

	timerCtx, cancel := context.WithCancel(context.Background())
	timer := &userTimer{sessionID: sessionID, cancel: cancel}

	e.mu.Lock()
	if prior := e.timers[userID]; prior != nil {
		// A concurrent Start slipped in between our Stop and now.
		// Replace its timer; the registry entry already points at the
		// new session, so the old loop self-cancels on its next tick
		// even if this cancel were missed.
		prior.cancel()
	}
	e.timers[userID] = timer
	e.metrics.SetActiveTimers(len(e.timers))
	e.mu.Unlock()

	go e.run(timerCtx, userID, sessionID)

	e.log.Info("deduction started",
		zap.Int64("user_id", userID),
		zap.Int64("session_id", sessionID.Int64()),
		zap.Duration("period", e.period))
	return nil
}

// Stop cancels the user's local timer if one is registered and always
// deletes the registry handle: a timer may be running in another process,
// and the deleted handle is what makes its next tick self-cancel. Safe to
// call any number of times, with or without a prior Start.
func (e *Engine) Stop(ctx context.Context, userID int64) error {
	e.mu.Lock()
	timer := e.timers[userID]
	if timer != nil {
		delete(e.timers, userID)
		e.metrics.SetActiveTimers(len(e.timers))
	}
	e.mu.Unlock()

	if timer != nil {
		timer.cancel()
		e.log.Info("deduction timer cancelled", zap.Int64("user_id", userID))
	}

	return e.registry.Delete(ctx, userID)
}

// ActiveSessionID reports the session id in the user's registry handle.
// An absent or unparseable handle means no active session, never an error.
func (e *Engine) ActiveSessionID(ctx context.Context, userID int64) (int64, bool, error) {
	handle, err := e.registry.Get(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if handle == nil {
		return 0, false, nil
	}
	return handle.SessionID, true, nil
}

// Balance reads the account balance straight from the ledger.
func (e *Engine) Balance(ctx context.Context, userID int64) (int64, error) {
	account, err := e.store.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Credits, nil
}

// StopAllLocal cancels every local timer without touching the registry.
// Used at process shutdown: the sessions themselves stay live and are
// reconciled by the next start, stop, or surviving process's tick.
func (e *Engine) StopAllLocal() {
	e.mu.Lock()
	timers := e.timers
	e.timers = make(map[int64]*userTimer)
	e.metrics.SetActiveTimers(0)
	e.mu.Unlock()

	for userID, timer := range timers {
		timer.cancel()
		e.log.Info("deduction timer cancelled on shutdown", zap.Int64("user_id", userID))
	}
}

func (e *Engine) run(ctx context.Context, userID int64, sessionID snowflake.ID) {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(userID, sessionID)
		}
	}
}

// Tick performs one deduction step. Every failure inside a tick degrades
// to a skipped period: errors are logged, the schedule keeps running, and
// the next tick retries independently.
func (e *Engine) Tick(userID int64, sessionID snowflake.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), e.period)
	defer cancel()

	handle, err := e.registry.Get(ctx, userID)
	if err != nil {
		e.metrics.IncTick(metrics.TickOutcomeSkipped)
		e.log.Warn("registry read failed, skipping tick", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if handle == nil || handle.SessionID != sessionID.Int64() {
		// Stale or duplicate timer: the registry no longer points at
		// this session, so this loop must stop without deducting.
		e.metrics.IncTick(metrics.TickOutcomeOrphaned)
		e.log.Info("session no longer active, stopping deduction",
			zap.Int64("user_id", userID),
			zap.Int64("session_id", sessionID.Int64()))
		e.cancelLocal(userID, sessionID)
		return
	}

	account, err := e.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrAccountNotFound) {
			e.metrics.IncTick(metrics.TickOutcomeOrphaned)
			e.log.Warn("account missing, stopping deduction", zap.Int64("user_id", userID))
			if stopErr := e.Stop(ctx, userID); stopErr != nil {
				e.log.Warn("registry cleanup failed", zap.Int64("user_id", userID), zap.Error(stopErr))
			}
			return
		}
		e.metrics.IncTick(metrics.TickOutcomeSkipped)
		e.log.Warn("account read failed, skipping tick", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	if account.Credits <= 0 {
		e.exhaust(ctx, userID, sessionID)
		return
	}

	remaining, err := e.store.DecrementBalance(ctx, userID, 1)
	if err != nil {
		e.metrics.IncTick(metrics.TickOutcomeSkipped)
		e.log.Warn("deduction failed, skipping tick", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if err := e.store.IncrementConsumed(ctx, sessionID); err != nil {
		e.log.Warn("consumed counter update failed",
			zap.Int64("session_id", sessionID.Int64()), zap.Error(err))
	}
	sid := sessionID
	record := &ledgerdomain.DeductionRecord{
		UserID:           userID,
		SessionID:        &sid,
		UnitsDeducted:    1,
		RemainingBalance: remaining,
		RecordedAt:       e.clock.Now(),
	}
	if err := e.store.AppendDeductionRecord(ctx, record); err != nil {
		e.log.Warn("deduction log append failed", zap.Int64("user_id", userID), zap.Error(err))
	}

	e.metrics.IncTick(metrics.TickOutcomeDeducted)
	e.metrics.IncDeducted()
	e.publisher.PublishCreditUpdate(ctx, userID, remaining)

	if remaining <= 0 {
		e.exhaust(ctx, userID, sessionID)
	}
}

// exhaust terminates the session because the balance reached zero.
func (e *Engine) exhaust(ctx context.Context, userID int64, sessionID snowflake.ID) {
	e.metrics.IncTick(metrics.TickOutcomeExhausted)
	if err := e.Stop(ctx, userID); err != nil {
		e.log.Warn("registry cleanup failed on exhaustion", zap.Int64("user_id", userID), zap.Error(err))
	}
	if err := e.store.CloseSession(ctx, sessionID, e.clock.Now()); err != nil {
		e.log.Warn("session close failed on exhaustion",
			zap.Int64("session_id", sessionID.Int64()), zap.Error(err))
	}
	e.publisher.PublishSessionEnd(ctx, userID)
	e.log.Info("session exhausted",
		zap.Int64("user_id", userID),
		zap.Int64("session_id", sessionID.Int64()))
}

// cancelLocal drops the local timer for the given session without
// deleting the registry entry, which may already belong to a newer
// session. A timer registered for a different session is left alone.
func (e *Engine) cancelLocal(userID int64, sessionID snowflake.ID) {
	e.mu.Lock()
	timer := e.timers[userID]
	if timer != nil && timer.sessionID == sessionID {
		delete(e.timers, userID)
		e.metrics.SetActiveTimers(len(e.timers))
	} else {
		timer = nil
	}
	e.mu.Unlock()
	if timer != nil {
		timer.cancel()
	}
}

func registerHooks(lc fx.Lifecycle, engine *Engine) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			engine.StopAllLocal()
			return nil
		},
	})
}

var Module = fx.Module("metering",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)
