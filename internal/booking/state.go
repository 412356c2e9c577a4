package booking

import (
	"strings"
	"time"
)

// Step is the position of a conversation in the booking flow.
type Step string

const (
	StepIdle               Step = "idle"
	StepSelectingChild     Step = "selecting_child"
	StepSelectingType      Step = "selecting_type"
	StepSelectingDate      Step = "selecting_date"
	StepSelectingTime      Step = "selecting_time"
	StepAwaitingManualTime Step = "awaiting_manual_time"
)

// Steps lists every step in flow order.
func Steps() []Step {
	return []Step{
		StepIdle,
		StepSelectingChild,
		StepSelectingType,
		StepSelectingDate,
		StepSelectingTime,
		StepAwaitingManualTime,
	}
}

type VisitType string

const (
	VisitPrimary      VisitType = "primary"
	VisitRepeat       VisitType = "repeat"
	VisitVaccination  VisitType = "vaccination"
	VisitConsultation VisitType = "consultation"
)

var visitTypes = []VisitType{VisitPrimary, VisitRepeat, VisitVaccination, VisitConsultation}

// VisitTypes returns the bookable visit types in display order.
func VisitTypes() []VisitType {
	out := make([]VisitType, len(visitTypes))
	copy(out, visitTypes)
	return out
}

// ParseVisitType accepts the stored value or the label in any case.
func ParseVisitType(raw string) (VisitType, bool) {
	v := VisitType(strings.ToLower(strings.TrimSpace(raw)))
	for _, t := range visitTypes {
		if t == v {
			return t, true
		}
	}
	return "", false
}

func (v VisitType) Label() string {
	switch v {
	case VisitPrimary:
		return "Primary"
	case VisitRepeat:
		return "Repeat"
	case VisitVaccination:
		return "Vaccination"
	case VisitConsultation:
		return "Consultation"
	}
	return string(v)
}

// Child is the read-only projection of a patient offered for selection.
type Child struct {
	ID          string
	DisplayName string
	BirthDate   time.Time
}

// Option is one selectable answer of a prompt.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// State is one guardian's conversation. The engine never keeps it; callers
// persist the value returned by every operation.
type State struct {
	Step      Step      `json:"step"`
	ChildID   string    `json:"child_id,omitempty"`
	ChildName string    `json:"child_name,omitempty"`
	VisitType VisitType `json:"visit_type,omitempty"`
	VisitDate string    `json:"visit_date,omitempty"`
	VisitTime string    `json:"visit_time,omitempty"`

	// Children and Slots hold what was last offered so that a retry can be
	// validated and re-prompted without another lookup.
	Children []Option `json:"children,omitempty"`
	Slots    []string `json:"slots,omitempty"`

	Revision int64 `json:"revision"`
}

// Reset clears every collected field. The revision is kept for the store.
func (s State) Reset() State {
	return State{Step: StepIdle, Revision: s.Revision}
}

func (s State) CurrentStep() Step {
	if s.Step == "" {
		return StepIdle
	}
	return s.Step
}

func (s State) IsIdle() bool {
	return s.CurrentStep() == StepIdle
}

// Request is handed to the Booker once per completed flow.
type Request struct {
	ChildID    string    `json:"child_id"`
	GuardianID string    `json:"guardian_id"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	VisitType  VisitType `json:"visit_type"`
}

// Confirmation is what the Booker reports back on success.
type Confirmation struct {
	AppointmentID string `json:"appointment_id"`
}
