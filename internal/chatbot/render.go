package chatbot

import (
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
	"github.com/hackgods/pediatric-clinic-booking/internal/clinic"
)

const displayDate = "02.01.2006"

var promptText = map[booking.PromptKind]string{
	booking.PromptIdle:          "Choose an action:",
	booking.PromptChooseChild:   "Who is the appointment for?",
	booking.PromptChooseType:    "Choose the visit type:",
	booking.PromptChooseDate:    "Choose a date or type one as DD.MM.YYYY:",
	booking.PromptChooseTime:    "Choose a time:",
	booking.PromptEnterTime:     "Type the time as HH:MM, for example 09:30.",
	booking.PromptNoChildren:    "No children are linked to your account. Please contact the clinic.",
	booking.PromptBookingFailed: "The appointment could not be booked. Please try again.",
	booking.PromptUnavailable:   "The clinic directory is unavailable right now. Please try later.",
	booking.PromptCancelled:     "Booking cancelled.",
}

func menuButtons() [][]Button {
	return [][]Button{
		{{Text: "My children", Data: payloadChildren}, {Text: "Book appointment", Data: payloadBook}},
		{{Text: "History", Data: payloadHistory}, {Text: "Cancel", Data: payloadCancel}},
	}
}

// RenderPrompt turns an engine prompt into a chat message. note, when set,
// is shown above the prompt text.
func RenderPrompt(p booking.Prompt, note string) OutMessage {
	var text string
	if p.Kind == booking.PromptConfirmed && p.Summary != nil {
		text = confirmationText(*p.Summary)
	} else {
		text = promptText[p.Kind]
		if text == "" {
			text = promptText[booking.PromptIdle]
		}
	}
	if note != "" {
		text = note + "\n\n" + text
	}

	if p.Terminal() {
		return OutMessage{Text: text, Buttons: menuButtons()}
	}

	var rows [][]Button
	switch p.Kind {
	case booking.PromptChooseChild:
		rows = optionRows(p.Options, 1, childPayload)
	case booking.PromptChooseType:
		rows = optionRows(p.Options, 2, typePayload)
	case booking.PromptChooseDate:
		rows = optionRows(p.Options, 2, datePayload)
	case booking.PromptChooseTime:
		rows = optionRows(p.Options, 3, timePayload)
	}

	var nav []Button
	if p.AllowBack {
		nav = append(nav, Button{Text: "Back", Data: payloadBack})
	}
	if p.AllowManual {
		nav = append(nav, Button{Text: "Enter time manually", Data: payloadManual})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, []Button{{Text: "Cancel", Data: payloadCancel}})

	return OutMessage{Text: text, Buttons: rows}
}

func optionRows(opts []booking.Option, perRow int, payload func(string) string) [][]Button {
	var rows [][]Button
	var row []Button
	for _, o := range opts {
		row = append(row, Button{Text: o.Label, Data: payload(o.Value)})
		if len(row) == perRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func confirmationText(s booking.Summary) string {
	date := s.Date
	if d, err := time.Parse(booking.DateLayout, s.Date); err == nil {
		date = d.Format(displayDate)
	}
	return fmt.Sprintf("Appointment booked!\nChild: %s\nDate: %s\nTime: %s\nVisit: %s",
		s.ChildName, date, s.Time, s.VisitType.Label())
}

func childrenText(children []clinic.Child, today time.Time) string {
	if len(children) == 0 {
		return "No children are linked to your account."
	}
	var b strings.Builder
	b.WriteString("Your children:")
	for _, c := range children {
		fmt.Fprintf(&b, "\n%s, %s", c.DisplayName(), yearsLabel(c.AgeOn(today)))
	}
	return b.String()
}

func yearsLabel(n int) string {
	if n == 1 {
		return "1 year"
	}
	return fmt.Sprintf("%d years", n)
}

func historyText(appts []clinic.AppointmentDetail) string {
	if len(appts) == 0 {
		return "You have no appointments yet."
	}
	var b strings.Builder
	b.WriteString("Your appointments:")
	for _, a := range appts {
		fmt.Fprintf(&b, "\n%s %s, %s, %s (%s)",
			a.VisitDate.Format(displayDate), a.VisitTime, a.ChildName,
			booking.VisitType(a.VisitType).Label(), a.Status)
	}
	return b.String()
}

func reminderText(r clinic.Reminder) string {
	return fmt.Sprintf("Reminder: %s has a %s visit on %s at %s.",
		r.ChildName, strings.ToLower(booking.VisitType(r.VisitType).Label()),
		r.VisitDate.Format(displayDate), r.VisitTime)
}
