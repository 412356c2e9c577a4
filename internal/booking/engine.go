package booking

import (
	"context"
	"strings"
	"time"
)

// Directory answers the lookups the flow needs.
type Directory interface {
	ListChildren(ctx context.Context, guardianID string) ([]Child, error)
	FreeSlots(ctx context.Context, date time.Time) ([]string, error)
}

// Booker commits a finished flow.
type Booker interface {
	CreateBooking(ctx context.Context, req Request) (Confirmation, error)
}

// Engine drives the booking conversation. It is safe for concurrent use:
// all per-guardian data lives in the State values passed in and out.
//
// Every operation returns the state to persist. State is only advanced after
// a Directory or Booker call has returned.
type Engine struct {
	directory Directory
	booker    Booker
	loc       *time.Location
	now       func() time.Time
}

func NewEngine(directory Directory, booker Booker, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		directory: directory,
		booker:    booker,
		loc:       loc,
		now:       time.Now,
	}
}

// SetClock replaces the clock used to decide what "today" is.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Engine) Location() *time.Location { return e.loc }

func (e *Engine) today() time.Time {
	return StartOfDay(e.now().In(e.loc))
}

// Begin starts a fresh flow regardless of the current state.
func (e *Engine) Begin(ctx context.Context, guardianID string, st State) (State, Prompt, error) {
	children, err := e.directory.ListChildren(ctx, guardianID)
	if err != nil {
		return st.Reset(), Prompt{Kind: PromptUnavailable}, upstreamError(CodeDirectoryFailed, "could not load your children, please try again later", err)
	}
	if len(children) == 0 {
		return st.Reset(), Prompt{Kind: PromptNoChildren}, nil
	}

	next := st.Reset()
	next.Step = StepSelectingChild
	next.Children = childOptions(children)
	return next, childPrompt(next), nil
}

func (e *Engine) SelectChild(ctx context.Context, guardianID string, st State, in Input) (State, Prompt, error) {
	if st.CurrentStep() != StepSelectingChild {
		return st, Prompt{}, preconditionError("select child", st.CurrentStep())
	}

	switch in.Kind {
	case InputBack:
		return st.Reset(), Prompt{Kind: PromptCancelled}, nil
	case InputManual:
		return st, childPrompt(st), validationError(CodeUnsupportedInput, "please pick one of the listed children")
	}

	id := strings.TrimSpace(in.Value)
	for _, c := range st.Children {
		if c.Value == id {
			next := st
			next.ChildID = c.Value
			next.ChildName = c.Label
			next.Step = StepSelectingType
			return next, typePrompt(), nil
		}
	}
	return st, childPrompt(st), validationError(CodeUnknownChild, "this child is not on your list")
}

func (e *Engine) SelectType(ctx context.Context, guardianID string, st State, in Input) (State, Prompt, error) {
	if st.CurrentStep() != StepSelectingType {
		return st, Prompt{}, preconditionError("select visit type", st.CurrentStep())
	}

	switch in.Kind {
	case InputBack:
		return e.backToChildren(ctx, guardianID, st)
	case InputManual:
		return st, typePrompt(), validationError(CodeUnsupportedInput, "please pick one of the listed visit types")
	}

	vt, ok := ParseVisitType(in.Value)
	if !ok {
		return st, typePrompt(), validationError(CodeUnknownVisitType, "unknown visit type")
	}

	next := st
	next.VisitType = vt
	next.Step = StepSelectingDate
	return next, e.datePrompt(), nil
}

// backToChildren re-fetches the child list and keeps the previous choice as
// a hint when that child is still listed.
func (e *Engine) backToChildren(ctx context.Context, guardianID string, st State) (State, Prompt, error) {
	children, err := e.directory.ListChildren(ctx, guardianID)
	if err != nil {
		return st.Reset(), Prompt{Kind: PromptUnavailable}, upstreamError(CodeDirectoryFailed, "could not load your children, please try again later", err)
	}
	if len(children) == 0 {
		return st.Reset(), Prompt{Kind: PromptNoChildren}, nil
	}

	next := st.Reset()
	next.Step = StepSelectingChild
	next.Children = childOptions(children)
	for _, c := range next.Children {
		if c.Value == st.ChildID {
			next.ChildID = st.ChildID
			next.ChildName = st.ChildName
			break
		}
	}
	return next, childPrompt(next), nil
}

func (e *Engine) SelectDate(ctx context.Context, guardianID string, st State, in Input) (State, Prompt, error) {
	if st.CurrentStep() != StepSelectingDate {
		return st, Prompt{}, preconditionError("select date", st.CurrentStep())
	}

	switch in.Kind {
	case InputBack:
		next := st
		next.VisitType = ""
		next.VisitDate = ""
		next.Step = StepSelectingType
		return next, typePrompt(), nil
	case InputManual:
		return st, e.datePrompt(), validationError(CodeUnsupportedInput, "please pick a date")
	}

	date, err := ParseDate(in.Value, e.loc)
	if err != nil {
		return st, e.datePrompt(), validationError(CodeInvalidDate, "date must look like 2025-01-31")
	}
	if date.Before(e.today()) {
		return st, e.datePrompt(), validationError(CodePastDate, "this date is in the past")
	}

	slots, err := e.directory.FreeSlots(ctx, date)
	if err != nil {
		return st.Reset(), Prompt{Kind: PromptUnavailable}, upstreamError(CodeDirectoryFailed, "could not load free times, please try again later", err)
	}
	if len(slots) == 0 {
		return st, e.datePrompt(), validationError(CodeNoSlots, "no free times on this date, please pick another one")
	}

	next := st
	next.VisitDate = date.Format(DateLayout)
	next.Slots = append([]string(nil), slots...)
	next.Step = StepSelectingTime
	return next, timePrompt(next), nil
}

func (e *Engine) SelectTime(ctx context.Context, guardianID string, st State, in Input) (State, Prompt, error) {
	step := st.CurrentStep()
	if step != StepSelectingTime && step != StepAwaitingManualTime {
		return st, Prompt{}, preconditionError("select time", step)
	}

	switch in.Kind {
	case InputBack:
		next := st
		if step == StepAwaitingManualTime {
			next.Step = StepSelectingTime
			return next, timePrompt(next), nil
		}
		next.VisitDate = ""
		next.Slots = nil
		next.Step = StepSelectingDate
		return next, e.datePrompt(), nil
	case InputManual:
		next := st
		next.Step = StepAwaitingManualTime
		return next, manualPrompt(), nil
	}

	at, ok := ParseClock(in.Value)
	if !ok {
		return st, retimePrompt(st), validationError(CodeInvalidTime, "time must look like 09:30")
	}
	if step == StepSelectingTime && !contains(st.Slots, at) {
		return st, retimePrompt(st), validationError(CodeUnknownSlot, "this time is not available, pick one of the listed times")
	}

	req := Request{
		ChildID:    st.ChildID,
		GuardianID: guardianID,
		Date:       st.VisitDate,
		Time:       at,
		VisitType:  st.VisitType,
	}
	conf, err := e.booker.CreateBooking(ctx, req)
	if err != nil {
		return st.Reset(), Prompt{Kind: PromptBookingFailed}, upstreamError(CodeBookingFailed, "the appointment could not be booked, please start again", err)
	}

	return st.Reset(), Prompt{
		Kind: PromptConfirmed,
		Summary: &Summary{
			AppointmentID: conf.AppointmentID,
			ChildName:     st.ChildName,
			Date:          req.Date,
			Time:          req.Time,
			VisitType:     req.VisitType,
		},
	}, nil
}

// Cancel is valid from every step and never calls out.
func (e *Engine) Cancel(ctx context.Context, guardianID string, st State) (State, Prompt, error) {
	return st.Reset(), Prompt{Kind: PromptCancelled}, nil
}

// Handle routes an input to the operation that matches the current step.
func (e *Engine) Handle(ctx context.Context, guardianID string, st State, in Input) (State, Prompt, error) {
	switch st.CurrentStep() {
	case StepSelectingChild:
		return e.SelectChild(ctx, guardianID, st, in)
	case StepSelectingType:
		return e.SelectType(ctx, guardianID, st, in)
	case StepSelectingDate:
		return e.SelectDate(ctx, guardianID, st, in)
	case StepSelectingTime, StepAwaitingManualTime:
		return e.SelectTime(ctx, guardianID, st, in)
	}
	return st, Prompt{}, preconditionError("answer", st.CurrentStep())
}

// Current re-renders the prompt for a stored state without external calls.
func (e *Engine) Current(st State) Prompt {
	switch st.CurrentStep() {
	case StepSelectingChild:
		return childPrompt(st)
	case StepSelectingType:
		return typePrompt()
	case StepSelectingDate:
		return e.datePrompt()
	case StepSelectingTime:
		return timePrompt(st)
	case StepAwaitingManualTime:
		return manualPrompt()
	}
	return Prompt{Kind: PromptIdle}
}

func (e *Engine) datePrompt() Prompt {
	return Prompt{Kind: PromptChooseDate, Options: CandidateDates(e.today()), AllowBack: true}
}

func childOptions(children []Child) []Option {
	out := make([]Option, 0, len(children))
	for _, c := range children {
		out = append(out, Option{Value: c.ID, Label: c.DisplayName})
	}
	return out
}

func childPrompt(st State) Prompt {
	return Prompt{Kind: PromptChooseChild, Options: st.Children, AllowBack: true}
}

func typePrompt() Prompt {
	opts := make([]Option, 0, len(visitTypes))
	for _, t := range visitTypes {
		opts = append(opts, Option{Value: string(t), Label: t.Label()})
	}
	return Prompt{Kind: PromptChooseType, Options: opts, AllowBack: true}
}

func timePrompt(st State) Prompt {
	opts := make([]Option, 0, len(st.Slots))
	for _, s := range st.Slots {
		opts = append(opts, Option{Value: s, Label: s})
	}
	return Prompt{Kind: PromptChooseTime, Options: opts, AllowBack: true, AllowManual: true}
}

func manualPrompt() Prompt {
	return Prompt{Kind: PromptEnterTime, AllowBack: true}
}

func retimePrompt(st State) Prompt {
	if st.CurrentStep() == StepAwaitingManualTime {
		return manualPrompt()
	}
	return timePrompt(st)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
