package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
	"github.com/hackgods/pediatric-clinic-booking/internal/logging"
	"github.com/hackgods/pediatric-clinic-booking/internal/metrics"
	redisclient "github.com/hackgods/pediatric-clinic-booking/internal/redis"
)

// ErrBusy means another operation on the same conversation is running.
var ErrBusy = errors.New("conversation is busy, please wait")

// saveTimeout bounds the write of an operation's result. The write runs
// even when the request context is already done.
const saveTimeout = 2 * time.Second

// Op advances a loaded state.
type Op func(ctx context.Context, st booking.State) (booking.State, booking.Prompt, error)

// Coordinator serializes operations per conversation and persists their
// results.
type Coordinator struct {
	store   *Store
	locker  redisclient.Locker
	metrics *metrics.BookingMetrics
	log     *zap.Logger
}

func NewCoordinator(store *Store, locker redisclient.Locker, m *metrics.BookingMetrics, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		locker:  locker,
		metrics: m,
		log:     logging.OrNop(logger),
	}
}

// Run loads the conversation under its lock, applies op and stores the
// result. The error returned by op is passed through after the state is
// saved. If the conversation was reset while op ran, the result is dropped
// and ErrSuperseded is returned with the stored state.
func (c *Coordinator) Run(ctx context.Context, key Key, name string, op Op) (booking.State, booking.Prompt, error) {
	var (
		next   booking.State
		prompt booking.Prompt
		opErr  error
	)

	err := c.locker.WithLock(ctx, redisclient.ConversationLockKey(key.GuardianID, key.Session), func(lockCtx context.Context) error {
		st, err := c.store.Load(lockCtx, key)
		if err != nil {
			return err
		}

		next, prompt, opErr = op(lockCtx, st)
		c.metrics.ObserveTransition(name, opErr)

		// op may have committed a booking before lockCtx ended; its result
		// must still be stored so the flow cannot be resumed.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(lockCtx), saveTimeout)
		defer cancel()
		saved, err := c.store.Save(saveCtx, key, next)
		if err != nil {
			return err
		}
		next = saved
		return nil
	})

	switch {
	case err == nil:
		return next, prompt, opErr
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		c.metrics.ObserveConflict("busy")
		return booking.State{}, booking.Prompt{}, ErrBusy
	case errors.Is(err, ErrSuperseded):
		c.metrics.ObserveConflict("superseded")
		c.log.Info("conversation result discarded",
			zap.String("conversation", key.String()),
			zap.String("operation", name),
		)
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer cancel()
		current, loadErr := c.store.Load(loadCtx, key)
		if loadErr != nil {
			return booking.State{}, booking.Prompt{}, ErrSuperseded
		}
		return current, booking.Prompt{Kind: booking.PromptCancelled}, ErrSuperseded
	default:
		return booking.State{}, booking.Prompt{}, fmt.Errorf("%s: %w", name, err)
	}
}

// Cancel resets the conversation without waiting for the lock, so it wins
// over an operation that is still waiting on an external call.
func (c *Coordinator) Cancel(ctx context.Context, key Key) (booking.State, booking.Prompt, error) {
	st, err := c.store.Reset(ctx, key)
	if err != nil {
		return booking.State{}, booking.Prompt{}, err
	}
	c.metrics.ObserveTransition("cancel", nil)
	return st, booking.Prompt{Kind: booking.PromptCancelled}, nil
}

// Load returns the stored conversation without locking.
func (c *Coordinator) Load(ctx context.Context, key Key) (booking.State, error) {
	return c.store.Load(ctx, key)
}
