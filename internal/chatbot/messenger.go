package chatbot

import "context"

// Button is one inline keyboard button. Data comes back as callback data.
type Button struct {
	Text string
	Data string
}

// OutMessage is a text with an optional inline keyboard, one slice per row.
type OutMessage struct {
	Text    string
	Buttons [][]Button
}

// Messenger delivers bot output to a chat platform.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg OutMessage) error
	AnswerCallback(ctx context.Context, callbackID string) error
}
