package session

import (
	"context"

	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
)

// Conversations runs engine operations against stored conversations. Both
// front-ends go through it.
type Conversations struct {
	engine *booking.Engine
	coord  *Coordinator
}

func NewConversations(engine *booking.Engine, coord *Coordinator) *Conversations {
	return &Conversations{engine: engine, coord: coord}
}

func (c *Conversations) Engine() *booking.Engine { return c.engine }

func (c *Conversations) Begin(ctx context.Context, key Key) (booking.State, booking.Prompt, error) {
	return c.coord.Run(ctx, key, "begin", func(ctx context.Context, st booking.State) (booking.State, booking.Prompt, error) {
		return c.engine.Begin(ctx, key.GuardianID, st)
	})
}

func (c *Conversations) SelectChild(ctx context.Context, key Key, in booking.Input) (booking.State, booking.Prompt, error) {
	return c.coord.Run(ctx, key, "select_child", func(ctx context.Context, st booking.State) (booking.State, booking.Prompt, error) {
		return c.engine.SelectChild(ctx, key.GuardianID, st, in)
	})
}

func (c *Conversations) SelectType(ctx context.Context, key Key, in booking.Input) (booking.State, booking.Prompt, error) {
	return c.coord.Run(ctx, key, "select_type", func(ctx context.Context, st booking.State) (booking.State, booking.Prompt, error) {
		return c.engine.SelectType(ctx, key.GuardianID, st, in)
	})
}

func (c *Conversations) SelectDate(ctx context.Context, key Key, in booking.Input) (booking.State, booking.Prompt, error) {
	return c.coord.Run(ctx, key, "select_date", func(ctx context.Context, st booking.State) (booking.State, booking.Prompt, error) {
		return c.engine.SelectDate(ctx, key.GuardianID, st, in)
	})
}

func (c *Conversations) SelectTime(ctx context.Context, key Key, in booking.Input) (booking.State, booking.Prompt, error) {
	return c.coord.Run(ctx, key, "select_time", func(ctx context.Context, st booking.State) (booking.State, booking.Prompt, error) {
		return c.engine.SelectTime(ctx, key.GuardianID, st, in)
	})
}

// Handle routes free input by the stored step.
func (c *Conversations) Handle(ctx context.Context, key Key, in booking.Input) (booking.State, booking.Prompt, error) {
	return c.coord.Run(ctx, key, "handle", func(ctx context.Context, st booking.State) (booking.State, booking.Prompt, error) {
		return c.engine.Handle(ctx, key.GuardianID, st, in)
	})
}

func (c *Conversations) Cancel(ctx context.Context, key Key) (booking.State, booking.Prompt, error) {
	return c.coord.Cancel(ctx, key)
}

// Current returns the stored state and its prompt.
func (c *Conversations) Current(ctx context.Context, key Key) (booking.State, booking.Prompt, error) {
	st, err := c.coord.Load(ctx, key)
	if err != nil {
		return booking.State{}, booking.Prompt{}, err
	}
	return st, c.engine.Current(st), nil
}
