package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	children    []Child
	childrenErr error
	slots       map[string][]string
	slotsErr    error

	childCalls int
	slotCalls  int
}

func (f *fakeDirectory) ListChildren(ctx context.Context, guardianID string) ([]Child, error) {
	f.childCalls++
	if f.childrenErr != nil {
		return nil, f.childrenErr
	}
	return f.children, nil
}

func (f *fakeDirectory) FreeSlots(ctx context.Context, date time.Time) ([]string, error) {
	f.slotCalls++
	if f.slotsErr != nil {
		return nil, f.slotsErr
	}
	return f.slots[date.Format(DateLayout)], nil
}

type fakeBooker struct {
	err      error
	requests []Request
}

func (f *fakeBooker) CreateBooking(ctx context.Context, req Request) (Confirmation, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return Confirmation{}, f.err
	}
	return Confirmation{AppointmentID: "appt-1"}, nil
}

func (f *fakeDirectory) calls() int { return f.childCalls + f.slotCalls }

// 2025-01-08 is a Wednesday.
var fixedNow = time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)

func newTestEngine() (*Engine, *fakeDirectory, *fakeBooker) {
	dir := &fakeDirectory{
		children: []Child{{ID: "c1", DisplayName: "Alex"}},
		slots:    map[string][]string{"2025-01-10": {"09:00", "09:30"}},
	}
	bk := &fakeBooker{}
	e := NewEngine(dir, bk, time.UTC)
	e.SetClock(func() time.Time { return fixedNow })
	return e, dir, bk
}

// walkTo drives a fresh engine up to the requested step.
func walkTo(t *testing.T, e *Engine, step Step) State {
	t.Helper()
	ctx := context.Background()
	st := State{}
	var err error

	if step == StepIdle {
		return st
	}
	st, _, err = e.Begin(ctx, "g1", st)
	require.NoError(t, err)
	if step == StepSelectingChild {
		return st
	}
	st, _, err = e.SelectChild(ctx, "g1", st, Value("c1"))
	require.NoError(t, err)
	if step == StepSelectingType {
		return st
	}
	st, _, err = e.SelectType(ctx, "g1", st, Value("Consultation"))
	require.NoError(t, err)
	if step == StepSelectingDate {
		return st
	}
	st, _, err = e.SelectDate(ctx, "g1", st, Value("2025-01-10"))
	require.NoError(t, err)
	if step == StepSelectingTime {
		return st
	}
	st, _, err = e.SelectTime(ctx, "g1", st, Manual())
	require.NoError(t, err)
	require.Equal(t, StepAwaitingManualTime, st.Step)
	return st
}

func TestEngine_RoundTrip(t *testing.T) {
	e, _, bk := newTestEngine()
	ctx := context.Background()

	st, p, err := e.Begin(ctx, "g1", State{})
	require.NoError(t, err)
	assert.Equal(t, StepSelectingChild, st.Step)
	assert.Equal(t, PromptChooseChild, p.Kind)
	assert.Equal(t, []Option{{Value: "c1", Label: "Alex"}}, p.Options)

	st, p, err = e.SelectChild(ctx, "g1", st, Value("c1"))
	require.NoError(t, err)
	assert.Equal(t, StepSelectingType, st.Step)
	assert.Equal(t, "c1", st.ChildID)
	assert.Equal(t, "Alex", st.ChildName)
	assert.Len(t, p.Options, 4)

	st, p, err = e.SelectType(ctx, "g1", st, Value("Consultation"))
	require.NoError(t, err)
	assert.Equal(t, StepSelectingDate, st.Step)
	assert.Equal(t, VisitConsultation, st.VisitType)
	assert.Equal(t, PromptChooseDate, p.Kind)

	st, p, err = e.SelectDate(ctx, "g1", st, Value("2025-01-10"))
	require.NoError(t, err)
	assert.Equal(t, StepSelectingTime, st.Step)
	assert.Equal(t, "2025-01-10", st.VisitDate)
	assert.True(t, p.AllowManual)
	assert.Equal(t, []Option{{Value: "09:00", Label: "09:00"}, {Value: "09:30", Label: "09:30"}}, p.Options)

	st, p, err = e.SelectTime(ctx, "g1", st, Value("09:00"))
	require.NoError(t, err)
	assert.Equal(t, StepIdle, st.Step)
	assert.Empty(t, st.ChildID)
	assert.Empty(t, st.VisitDate)

	require.Len(t, bk.requests, 1)
	assert.Equal(t, Request{
		ChildID:    "c1",
		GuardianID: "g1",
		Date:       "2025-01-10",
		Time:       "09:00",
		VisitType:  VisitConsultation,
	}, bk.requests[0])

	assert.Equal(t, PromptConfirmed, p.Kind)
	require.NotNil(t, p.Summary)
	assert.Equal(t, Summary{
		AppointmentID: "appt-1",
		ChildName:     "Alex",
		Date:          "2025-01-10",
		Time:          "09:00",
		VisitType:     VisitConsultation,
	}, *p.Summary)
}

func TestEngine_ManualTimeEntry(t *testing.T) {
	e, _, bk := newTestEngine()
	ctx := context.Background()
	st := walkTo(t, e, StepSelectingTime)

	st, p, err := e.SelectTime(ctx, "g1", st, Manual())
	require.NoError(t, err)
	assert.Equal(t, StepAwaitingManualTime, st.Step)
	assert.Equal(t, PromptEnterTime, p.Kind)
	assert.Empty(t, bk.requests)

	// Not in the offered list, still accepted in manual mode.
	st, p, err = e.SelectTime(ctx, "g1", st, Value("09:15"))
	require.NoError(t, err)
	assert.Equal(t, StepIdle, st.Step)
	assert.Equal(t, PromptConfirmed, p.Kind)
	require.Len(t, bk.requests, 1)
	assert.Equal(t, "09:15", bk.requests[0].Time)
}

func TestEngine_InvalidTimeKeepsStep(t *testing.T) {
	tests := []struct {
		name   string
		manual bool
		input  string
		code   string
	}{
		{"slot mode bad format", false, "9:00", CodeInvalidTime},
		{"slot mode unknown slot", false, "10:00", CodeUnknownSlot},
		{"manual hour out of range", true, "24:00", CodeInvalidTime},
		{"manual minute out of range", true, "09:60", CodeInvalidTime},
		{"manual garbage", true, "noon", CodeInvalidTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, bk := newTestEngine()
			step := StepSelectingTime
			if tt.manual {
				step = StepAwaitingManualTime
			}
			st := walkTo(t, e, step)

			next, _, err := e.SelectTime(context.Background(), "g1", st, Value(tt.input))
			require.Error(t, err)
			engErr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, KindValidation, engErr.Kind)
			assert.Equal(t, tt.code, engErr.Code)
			assert.NotEmpty(t, engErr.Message)
			assert.Equal(t, step, next.Step)
			assert.Empty(t, next.VisitTime)
			assert.Empty(t, bk.requests)
		})
	}
}

func TestEngine_SelectDateRejectsPast(t *testing.T) {
	e, dir, _ := newTestEngine()
	st := walkTo(t, e, StepSelectingDate)
	before := dir.calls()

	yesterday := fixedNow.AddDate(0, 0, -1).Format(DateLayout)
	for _, raw := range []string{yesterday, "2020-05-01"} {
		next, _, err := e.SelectDate(context.Background(), "g1", st, Value(raw))
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Equal(t, StepSelectingDate, next.Step)
		assert.Empty(t, next.VisitDate)
	}
	assert.Equal(t, before, dir.calls(), "past dates must not reach the directory")
}

func TestEngine_SelectDateUnparseable(t *testing.T) {
	e, _, _ := newTestEngine()
	st := walkTo(t, e, StepSelectingDate)

	next, p, err := e.SelectDate(context.Background(), "g1", st, Value("10.01.2025"))
	engErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidDate, engErr.Code)
	assert.Equal(t, st, next)
	assert.Equal(t, PromptChooseDate, p.Kind)
}

func TestEngine_SelectDateAcceptsToday(t *testing.T) {
	e, dir, _ := newTestEngine()
	dir.slots["2025-01-08"] = []string{"16:00"}
	st := walkTo(t, e, StepSelectingDate)

	next, _, err := e.SelectDate(context.Background(), "g1", st, Value("2025-01-08"))
	require.NoError(t, err)
	assert.Equal(t, StepSelectingTime, next.Step)
	assert.Equal(t, []string{"16:00"}, next.Slots)
}

func TestEngine_SelectDateNoSlotsStaysOnDate(t *testing.T) {
	e, _, _ := newTestEngine()
	st := walkTo(t, e, StepSelectingDate)

	next, p, err := e.SelectDate(context.Background(), "g1", st, Value("2025-01-11"))
	engErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, engErr.Kind)
	assert.Equal(t, CodeNoSlots, engErr.Code)
	assert.Equal(t, StepSelectingDate, next.Step)
	assert.Empty(t, next.VisitDate)
	assert.Equal(t, PromptChooseDate, p.Kind)
}

func TestEngine_SelectDateUpstreamFailureResets(t *testing.T) {
	e, dir, _ := newTestEngine()
	st := walkTo(t, e, StepSelectingDate)
	dir.slotsErr = errors.New("connection refused")

	next, p, err := e.SelectDate(context.Background(), "g1", st, Value("2025-01-10"))
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, StepIdle, next.Step)
	assert.Empty(t, next.ChildID)
	assert.Equal(t, PromptUnavailable, p.Kind)
}

func TestEngine_SelectChildUnknownID(t *testing.T) {
	e, _, _ := newTestEngine()
	st := walkTo(t, e, StepSelectingChild)

	next, p, err := e.SelectChild(context.Background(), "g1", st, Value("c2"))
	engErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, engErr.Kind)
	assert.Equal(t, CodeUnknownChild, engErr.Code)
	assert.Equal(t, StepSelectingChild, next.Step)
	assert.Empty(t, next.ChildID)
	assert.Equal(t, PromptChooseChild, p.Kind)

	// Retry with a valid id still works.
	next, _, err = e.SelectChild(context.Background(), "g1", next, Value("c1"))
	require.NoError(t, err)
	assert.Equal(t, StepSelectingType, next.Step)
}

func TestEngine_SelectTypeUnknown(t *testing.T) {
	e, _, _ := newTestEngine()
	st := walkTo(t, e, StepSelectingType)

	next, _, err := e.SelectType(context.Background(), "g1", st, Value("surgery"))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, StepSelectingType, next.Step)
	assert.Empty(t, next.VisitType)
}

func TestEngine_BeginEmptyChildren(t *testing.T) {
	e, dir, _ := newTestEngine()
	dir.children = nil

	st, p, err := e.Begin(context.Background(), "g1", State{})
	require.NoError(t, err)
	assert.Equal(t, StepIdle, st.Step)
	assert.Equal(t, PromptNoChildren, p.Kind)
	assert.True(t, p.Terminal())
}

func TestEngine_BeginDirectoryFailure(t *testing.T) {
	e, dir, _ := newTestEngine()
	dir.childrenErr = errors.New("timeout")

	st, p, err := e.Begin(context.Background(), "g1", State{})
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.ErrorIs(t, err, dir.childrenErr)
	assert.Equal(t, StepIdle, st.Step)
	assert.Equal(t, PromptUnavailable, p.Kind)
}

func TestEngine_BookingFailureLeavesNoResidue(t *testing.T) {
	e, _, bk := newTestEngine()
	bk.err = errors.New("network down")
	ctx := context.Background()
	st := walkTo(t, e, StepSelectingTime)

	st, p, err := e.SelectTime(ctx, "g1", st, Value("09:30"))
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, PromptBookingFailed, p.Kind)
	assert.Equal(t, State{Step: StepIdle}, st)
	assert.Len(t, bk.requests, 1, "booking must not be retried")

	st, _, err = e.Begin(ctx, "g1", st)
	require.NoError(t, err)
	assert.Equal(t, StepSelectingChild, st.Step)
	assert.Empty(t, st.ChildID)
	assert.Empty(t, st.ChildName)
	assert.Empty(t, st.VisitType)
	assert.Empty(t, st.VisitDate)
	assert.Empty(t, st.VisitTime)
	assert.Empty(t, st.Slots)
}

func TestEngine_CancelFromEveryStep(t *testing.T) {
	for _, step := range Steps() {
		t.Run(string(step), func(t *testing.T) {
			e, dir, bk := newTestEngine()
			st := walkTo(t, e, step)
			st.Revision = 7
			before := dir.calls()

			next, p, err := e.Cancel(context.Background(), "g1", st)
			require.NoError(t, err)
			assert.Equal(t, State{Step: StepIdle, Revision: 7}, next)
			assert.Equal(t, PromptCancelled, p.Kind)
			assert.Equal(t, before, dir.calls())
			assert.Empty(t, bk.requests)
		})
	}
}

func TestEngine_PreconditionViolations(t *testing.T) {
	e, dir, bk := newTestEngine()
	ctx := context.Background()
	st := walkTo(t, e, StepSelectingChild)
	before := dir.calls()

	next, _, err := e.SelectTime(ctx, "g1", st, Value("09:00"))
	assert.Equal(t, KindPrecondition, KindOf(err))
	assert.Equal(t, st, next)

	_, _, err = e.SelectDate(ctx, "g1", st, Value("2025-01-10"))
	assert.Equal(t, KindPrecondition, KindOf(err))

	_, _, err = e.SelectType(ctx, "g1", st, Value("primary"))
	assert.Equal(t, KindPrecondition, KindOf(err))

	_, _, err = e.SelectChild(ctx, "g1", State{}, Value("c1"))
	assert.Equal(t, KindPrecondition, KindOf(err))

	_, _, err = e.Handle(ctx, "g1", State{}, Value("c1"))
	assert.Equal(t, KindPrecondition, KindOf(err))

	assert.Equal(t, before, dir.calls())
	assert.Empty(t, bk.requests)
}

func TestEngine_BackNavigation(t *testing.T) {
	ctx := context.Background()

	t.Run("from child resets", func(t *testing.T) {
		e, _, _ := newTestEngine()
		st := walkTo(t, e, StepSelectingChild)
		next, _, err := e.SelectChild(ctx, "g1", st, Back())
		require.NoError(t, err)
		assert.True(t, next.IsIdle())
		assert.Empty(t, next.Children)
	})

	t.Run("from type refetches children and keeps choice", func(t *testing.T) {
		e, dir, _ := newTestEngine()
		st := walkTo(t, e, StepSelectingType)
		before := dir.childCalls
		next, p, err := e.SelectType(ctx, "g1", st, Back())
		require.NoError(t, err)
		assert.Equal(t, StepSelectingChild, next.Step)
		assert.Equal(t, "c1", next.ChildID)
		assert.Equal(t, before+1, dir.childCalls)
		assert.Equal(t, PromptChooseChild, p.Kind)
	})

	t.Run("from type with directory failure", func(t *testing.T) {
		e, dir, _ := newTestEngine()
		st := walkTo(t, e, StepSelectingType)
		dir.childrenErr = errors.New("boom")
		next, _, err := e.SelectType(ctx, "g1", st, Back())
		assert.Equal(t, KindUpstream, KindOf(err))
		assert.True(t, next.IsIdle())
	})

	t.Run("from date clears date and type", func(t *testing.T) {
		e, _, _ := newTestEngine()
		st := walkTo(t, e, StepSelectingDate)
		next, p, err := e.SelectDate(ctx, "g1", st, Back())
		require.NoError(t, err)
		assert.Equal(t, StepSelectingType, next.Step)
		assert.Empty(t, next.VisitDate)
		assert.Empty(t, next.VisitType)
		assert.Equal(t, "c1", next.ChildID)
		assert.Equal(t, PromptChooseType, p.Kind)
	})

	t.Run("from time returns to dates", func(t *testing.T) {
		e, _, _ := newTestEngine()
		st := walkTo(t, e, StepSelectingTime)
		next, p, err := e.SelectTime(ctx, "g1", st, Back())
		require.NoError(t, err)
		assert.Equal(t, StepSelectingDate, next.Step)
		assert.Empty(t, next.VisitDate)
		assert.Empty(t, next.Slots)
		assert.Equal(t, PromptChooseDate, p.Kind)
	})

	t.Run("from manual returns to slots", func(t *testing.T) {
		e, dir, _ := newTestEngine()
		st := walkTo(t, e, StepAwaitingManualTime)
		before := dir.calls()
		next, p, err := e.SelectTime(ctx, "g1", st, Back())
		require.NoError(t, err)
		assert.Equal(t, StepSelectingTime, next.Step)
		assert.Equal(t, "2025-01-10", next.VisitDate)
		assert.Len(t, p.Options, 2)
		assert.Equal(t, before, dir.calls())
	})
}

func TestEngine_HandleDispatchesByStep(t *testing.T) {
	e, _, bk := newTestEngine()
	ctx := context.Background()

	st, _, err := e.Begin(ctx, "g1", State{})
	require.NoError(t, err)
	for _, in := range []Input{Value("c1"), Value("vaccination"), Value("2025-01-10"), Manual(), Value("17:45")} {
		st, _, err = e.Handle(ctx, "g1", st, in)
		require.NoError(t, err)
	}

	assert.True(t, st.IsIdle())
	require.Len(t, bk.requests, 1)
	assert.Equal(t, VisitVaccination, bk.requests[0].VisitType)
	assert.Equal(t, "17:45", bk.requests[0].Time)
}

func TestEngine_CurrentRendersStoredState(t *testing.T) {
	e, dir, _ := newTestEngine()
	st := walkTo(t, e, StepSelectingTime)
	before := dir.calls()

	p := e.Current(st)
	assert.Equal(t, PromptChooseTime, p.Kind)
	assert.Len(t, p.Options, 2)
	assert.Equal(t, PromptIdle, e.Current(State{}).Kind)
	assert.Equal(t, before, dir.calls())
}
