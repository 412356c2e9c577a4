package booking

type PromptKind string

const (
	PromptIdle          PromptKind = "idle"
	PromptChooseChild   PromptKind = "choose_child"
	PromptChooseType    PromptKind = "choose_type"
	PromptChooseDate    PromptKind = "choose_date"
	PromptChooseTime    PromptKind = "choose_time"
	PromptEnterTime     PromptKind = "enter_time"
	PromptNoChildren    PromptKind = "no_children"
	PromptConfirmed     PromptKind = "confirmed"
	PromptBookingFailed PromptKind = "booking_failed"
	PromptUnavailable   PromptKind = "unavailable"
	PromptCancelled     PromptKind = "cancelled"
)

// Prompt is structured intent for the front-end. It never carries markup.
type Prompt struct {
	Kind        PromptKind `json:"kind"`
	Options     []Option   `json:"options,omitempty"`
	AllowBack   bool       `json:"allow_back,omitempty"`
	AllowManual bool       `json:"allow_manual,omitempty"`
	Summary     *Summary   `json:"summary,omitempty"`
}

// Terminal reports whether the prompt ends the flow.
func (p Prompt) Terminal() bool {
	switch p.Kind {
	case PromptNoChildren, PromptConfirmed, PromptBookingFailed, PromptUnavailable, PromptCancelled, PromptIdle:
		return true
	}
	return false
}

// Summary describes a committed booking.
type Summary struct {
	AppointmentID string    `json:"appointment_id,omitempty"`
	ChildName     string    `json:"child_name"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	VisitType     VisitType `json:"visit_type"`
}
