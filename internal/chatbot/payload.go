package chatbot

import (
	"strings"
	"time"

	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
)

// Action is what a button press or a message asks the bot to do.
type Action string

const (
	ActionNone        Action = ""
	ActionStart       Action = "start"
	ActionAuthorize   Action = "authorize"
	ActionMenu        Action = "menu"
	ActionChildren    Action = "children"
	ActionBook        Action = "book"
	ActionHistory     Action = "history"
	ActionCancel      Action = "cancel"
	ActionSelectChild Action = "select_child"
	ActionSelectType  Action = "select_type"
	ActionSelectDate  Action = "select_date"
	ActionSelectTime  Action = "select_time"
	ActionBack        Action = "back"
	ActionAnswer      Action = "answer"
)

// Button payloads. Telegram limits callback data to 64 bytes.
const (
	payloadAuthorize = "auth"
	payloadMenu      = "m:menu"
	payloadChildren  = "m:children"
	payloadBook      = "m:book"
	payloadHistory   = "m:history"

	payloadChild  = "b:child:"
	payloadType   = "b:type:"
	payloadDate   = "b:date:"
	payloadTime   = "b:time:"
	payloadManual = "b:manual"
	payloadBack   = "b:back"
	payloadCancel = "b:cancel"
)

// Command is a resolved user intent with its engine input.
type Command struct {
	Action Action
	Input  booking.Input
	Raw    string // typed text as sent
}

// ParsePayload resolves button callback data.
func ParsePayload(data string) Command {
	switch data {
	case payloadAuthorize:
		return Command{Action: ActionAuthorize}
	case payloadMenu:
		return Command{Action: ActionMenu}
	case payloadChildren:
		return Command{Action: ActionChildren}
	case payloadBook:
		return Command{Action: ActionBook}
	case payloadHistory:
		return Command{Action: ActionHistory}
	case payloadCancel:
		return Command{Action: ActionCancel}
	case payloadBack:
		return Command{Action: ActionBack, Input: booking.Back()}
	case payloadManual:
		return Command{Action: ActionSelectTime, Input: booking.Manual()}
	}

	prefixes := []struct {
		prefix string
		action Action
	}{
		{payloadChild, ActionSelectChild},
		{payloadType, ActionSelectType},
		{payloadDate, ActionSelectDate},
		{payloadTime, ActionSelectTime},
	}
	for _, p := range prefixes {
		if v, ok := strings.CutPrefix(data, p.prefix); ok && v != "" {
			return Command{Action: p.action, Input: booking.Value(v)}
		}
	}
	return Command{Action: ActionNone}
}

// ParseText resolves a typed message. Anything that is not a command is an
// answer to the current booking step.
func ParseText(text string) Command {
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "/start":
		return Command{Action: ActionStart}
	case "/menu":
		return Command{Action: ActionMenu}
	case "/cancel":
		return Command{Action: ActionCancel}
	case "":
		return Command{Action: ActionNone}
	}
	return Command{Action: ActionAnswer, Input: booking.Value(normalizeDate(text)), Raw: text}
}

// normalizeDate rewrites DD.MM.YYYY into the ISO form the engine expects.
// Other text is returned unchanged.
func normalizeDate(text string) string {
	if !strings.Contains(text, ".") {
		return text
	}
	d, err := time.Parse("2.1.2006", text)
	if err != nil {
		return text
	}
	return d.Format(booking.DateLayout)
}

func childPayload(id string) string { return payloadChild + id }

func typePayload(v string) string { return payloadType + v }

func datePayload(v string) string { return payloadDate + v }

func timePayload(v string) string { return payloadTime + v }
