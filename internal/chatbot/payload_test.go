package chatbot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		data string
		want Command
	}{
		{"auth", Command{Action: ActionAuthorize}},
		{"m:book", Command{Action: ActionBook}},
		{"m:children", Command{Action: ActionChildren}},
		{"m:history", Command{Action: ActionHistory}},
		{"b:cancel", Command{Action: ActionCancel}},
		{"b:back", Command{Action: ActionBack, Input: booking.Back()}},
		{"b:manual", Command{Action: ActionSelectTime, Input: booking.Manual()}},
		{"b:child:0b7c6a1e-2f4d-4c1a-9d58-4f2b1e3a9c77", Command{Action: ActionSelectChild, Input: booking.Value("0b7c6a1e-2f4d-4c1a-9d58-4f2b1e3a9c77")}},
		{"b:type:vaccination", Command{Action: ActionSelectType, Input: booking.Value("vaccination")}},
		{"b:date:2025-01-10", Command{Action: ActionSelectDate, Input: booking.Value("2025-01-10")}},
		{"b:time:09:30", Command{Action: ActionSelectTime, Input: booking.Value("09:30")}},
		{"b:time:", Command{Action: ActionNone}},
		{"garbage", Command{Action: ActionNone}},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePayload(tt.data))
		})
	}
}

func TestParseText(t *testing.T) {
	assert.Equal(t, ActionStart, ParseText(" /start ").Action)
	assert.Equal(t, ActionMenu, ParseText("/menu").Action)
	assert.Equal(t, ActionCancel, ParseText("/cancel").Action)
	assert.Equal(t, ActionNone, ParseText("   ").Action)

	cmd := ParseText("10.01.2025")
	assert.Equal(t, ActionAnswer, cmd.Action)
	assert.Equal(t, booking.Value("2025-01-10"), cmd.Input)
	assert.Equal(t, "10.01.2025", cmd.Raw)

	assert.Equal(t, booking.Value("2025-03-05"), ParseText("5.3.2025").Input)
	assert.Equal(t, booking.Value("09:30"), ParseText("09:30").Input)
	assert.Equal(t, booking.Value("31.02.2025"), ParseText("31.02.2025").Input, "invalid dates pass through for the engine to reject")
}

func TestPayloadsFitCallbackLimit(t *testing.T) {
	assert.LessOrEqual(t, len(childPayload("0b7c6a1e-2f4d-4c1a-9d58-4f2b1e3a9c77")), 64)
}
