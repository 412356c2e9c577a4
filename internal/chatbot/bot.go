package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/pediatric-clinic-booking/internal/auth"
	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
	"github.com/hackgods/pediatric-clinic-booking/internal/clinic"
	"github.com/hackgods/pediatric-clinic-booking/internal/logging"
	"github.com/hackgods/pediatric-clinic-booking/internal/session"
)

const historyLimit = 10

type Conversations interface {
	Begin(ctx context.Context, key session.Key) (booking.State, booking.Prompt, error)
	SelectChild(ctx context.Context, key session.Key, in booking.Input) (booking.State, booking.Prompt, error)
	SelectType(ctx context.Context, key session.Key, in booking.Input) (booking.State, booking.Prompt, error)
	SelectDate(ctx context.Context, key session.Key, in booking.Input) (booking.State, booking.Prompt, error)
	SelectTime(ctx context.Context, key session.Key, in booking.Input) (booking.State, booking.Prompt, error)
	Handle(ctx context.Context, key session.Key, in booking.Input) (booking.State, booking.Prompt, error)
	Cancel(ctx context.Context, key session.Key) (booking.State, booking.Prompt, error)
}

type ChatSessions interface {
	Get(ctx context.Context, chatID int64) (session.ChatSession, error)
	Put(ctx context.Context, chatID int64, cs session.ChatSession) error
	Delete(ctx context.Context, chatID int64) error
}

type Authenticator interface {
	Authenticate(ctx context.Context, phone, secret string) (*clinic.Guardian, error)
}

// Directory is the clinic data the menu shows.
type Directory interface {
	GuardianChildren(ctx context.Context, guardianID uuid.UUID) ([]clinic.Child, error)
	GuardianAppointments(ctx context.Context, guardianID uuid.UUID, limit int) ([]clinic.AppointmentDetail, error)
	LinkChat(ctx context.Context, chatID int64, guardianID uuid.UUID) error
}

type Config struct {
	Conversations Conversations
	Sessions      ChatSessions
	Auth          Authenticator
	Directory     Directory
	Messenger     Messenger
	Location      *time.Location
	Logger        *zap.Logger
}

// Bot is the chat front-end. It owns the login dialog and the main menu and
// hands booking steps to the conversation engine.
type Bot struct {
	conv     Conversations
	sessions ChatSessions
	auth     Authenticator
	dir      Directory
	out      Messenger
	loc      *time.Location
	log      *zap.Logger
	now      func() time.Time
}

func New(cfg Config) *Bot {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		conv:     cfg.Conversations,
		sessions: cfg.Sessions,
		auth:     cfg.Auth,
		dir:      cfg.Directory,
		out:      cfg.Messenger,
		loc:      loc,
		log:      logging.OrNop(cfg.Logger),
		now:      time.Now,
	}
}

// ServeHTTP receives webhook updates. It answers 200 for every decodable
// update so the platform does not redeliver it.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var u Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	if err := b.HandleUpdate(r.Context(), u); err != nil {
		b.log.Error("handle chat update",
			zap.Int64("update_id", u.UpdateID),
			zap.Int64("chat_id", u.ChatID()),
			zap.Error(err),
		)
	}
	w.WriteHeader(http.StatusOK)
}

// HandleUpdate processes one update.
func (b *Bot) HandleUpdate(ctx context.Context, u Update) error {
	chatID := u.ChatID()
	if chatID == 0 {
		return nil
	}

	var cmd Command
	switch {
	case u.CallbackQuery != nil:
		if err := b.out.AnswerCallback(ctx, u.CallbackQuery.ID); err != nil {
			b.log.Warn("answer callback", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		cmd = ParsePayload(u.CallbackQuery.Data)
	case u.Message != nil:
		if u.Message.Contact != nil {
			phone := u.Message.Contact.PhoneNumber
			cmd = Command{Action: ActionAnswer, Input: booking.Value(phone), Raw: phone}
		} else {
			cmd = ParseText(u.Message.Text)
		}
	}

	if cmd.Action == ActionStart {
		return b.start(ctx, chatID)
	}

	cs, err := b.sessions.Get(ctx, chatID)
	if err != nil {
		return err
	}

	switch cs.Stage {
	case session.ChatAuthenticated:
		if !cs.Authenticated() {
			return b.start(ctx, chatID)
		}
		return b.handleAuthenticated(ctx, chatID, cs, cmd)
	case session.ChatAwaitingPhone:
		if cmd.Action != ActionAnswer {
			return b.send(ctx, chatID, OutMessage{Text: "Please send your phone number."})
		}
		return b.receivePhone(ctx, chatID, cmd.Raw)
	case session.ChatAwaitingCode:
		if cmd.Action != ActionAnswer {
			return b.send(ctx, chatID, OutMessage{Text: "Please send your secret."})
		}
		return b.receiveSecret(ctx, chatID, cs, cmd.Raw)
	}

	if cmd.Action == ActionAuthorize {
		if err := b.sessions.Put(ctx, chatID, session.ChatSession{Stage: session.ChatAwaitingPhone}); err != nil {
			return err
		}
		return b.send(ctx, chatID, OutMessage{Text: "Send the phone number registered at the clinic."})
	}
	return b.send(ctx, chatID, OutMessage{Text: "Please press /start to sign in."})
}

func (b *Bot) start(ctx context.Context, chatID int64) error {
	if err := b.sessions.Delete(ctx, chatID); err != nil {
		return err
	}
	return b.send(ctx, chatID, OutMessage{
		Text:    "Welcome to the clinic bot. Sign in to see your children and book appointments.",
		Buttons: [][]Button{{{Text: "Authorize", Data: payloadAuthorize}}},
	})
}

func (b *Bot) receivePhone(ctx context.Context, chatID int64, raw string) error {
	phone, err := auth.NormalizePhone(raw)
	if err != nil {
		return b.send(ctx, chatID, OutMessage{Text: "This does not look like a phone number. Please try again."})
	}
	if err := b.sessions.Put(ctx, chatID, session.ChatSession{Stage: session.ChatAwaitingCode, Phone: phone}); err != nil {
		return err
	}
	return b.send(ctx, chatID, OutMessage{Text: "Now send your secret."})
}

func (b *Bot) receiveSecret(ctx context.Context, chatID int64, cs session.ChatSession, secret string) error {
	g, err := b.auth.Authenticate(ctx, cs.Phone, secret)
	if err != nil {
		if putErr := b.sessions.Put(ctx, chatID, session.ChatSession{Stage: session.ChatAwaitingPhone}); putErr != nil {
			return putErr
		}
		switch {
		case errors.Is(err, auth.ErrTooManyAttempts):
			return b.send(ctx, chatID, OutMessage{Text: "Too many attempts. Please try again later."})
		case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidPhone):
			return b.send(ctx, chatID, OutMessage{Text: "Wrong phone or secret. Send your phone number again."})
		}
		b.log.Error("chat login failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return b.send(ctx, chatID, OutMessage{Text: "Sign-in is unavailable right now. Send your phone number to try again."})
	}

	if err := b.dir.LinkChat(ctx, chatID, g.ID); err != nil {
		b.log.Warn("link chat", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	authed := session.ChatSession{
		Stage:        session.ChatAuthenticated,
		Phone:        cs.Phone,
		GuardianID:   g.ID.String(),
		GuardianName: g.FullName(),
	}
	if err := b.sessions.Put(ctx, chatID, authed); err != nil {
		return err
	}
	return b.send(ctx, chatID, OutMessage{
		Text:    fmt.Sprintf("Hello, %s! Choose an action:", g.FullName()),
		Buttons: menuButtons(),
	})
}

func conversationKey(cs session.ChatSession, chatID int64) session.Key {
	return session.Key{GuardianID: cs.GuardianID, Session: fmt.Sprintf("chat-%d", chatID)}
}

func (b *Bot) handleAuthenticated(ctx context.Context, chatID int64, cs session.ChatSession, cmd Command) error {
	key := conversationKey(cs, chatID)

	var (
		prompt booking.Prompt
		err    error
	)
	switch cmd.Action {
	case ActionMenu, ActionAuthorize:
		return b.send(ctx, chatID, OutMessage{Text: promptText[booking.PromptIdle], Buttons: menuButtons()})
	case ActionChildren:
		return b.showChildren(ctx, chatID, cs)
	case ActionHistory:
		return b.showHistory(ctx, chatID, cs)
	case ActionBook:
		_, prompt, err = b.conv.Begin(ctx, key)
	case ActionCancel:
		_, prompt, err = b.conv.Cancel(ctx, key)
	case ActionSelectChild:
		_, prompt, err = b.conv.SelectChild(ctx, key, cmd.Input)
	case ActionSelectType:
		_, prompt, err = b.conv.SelectType(ctx, key, cmd.Input)
	case ActionSelectDate:
		_, prompt, err = b.conv.SelectDate(ctx, key, cmd.Input)
	case ActionSelectTime:
		_, prompt, err = b.conv.SelectTime(ctx, key, cmd.Input)
	case ActionBack, ActionAnswer:
		_, prompt, err = b.conv.Handle(ctx, key, cmd.Input)
	default:
		return b.send(ctx, chatID, OutMessage{Text: promptText[booking.PromptIdle], Buttons: menuButtons()})
	}

	return b.send(ctx, chatID, b.renderResult(chatID, cmd, prompt, err))
}

func (b *Bot) renderResult(chatID int64, cmd Command, prompt booking.Prompt, err error) OutMessage {
	if err == nil {
		return RenderPrompt(prompt, "")
	}

	if e, ok := booking.AsError(err); ok {
		switch e.Kind {
		case booking.KindPrecondition:
			if cmd.Action == ActionAnswer {
				return RenderPrompt(booking.Prompt{Kind: booking.PromptIdle}, "")
			}
			return RenderPrompt(booking.Prompt{Kind: booking.PromptIdle}, "This button is no longer active.")
		case booking.KindUpstream:
			b.log.Warn("booking upstream failure", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		return RenderPrompt(prompt, e.Message)
	}

	switch {
	case errors.Is(err, session.ErrBusy):
		return OutMessage{Text: "Still working on your previous answer, please wait a moment."}
	case errors.Is(err, session.ErrSuperseded):
		return RenderPrompt(booking.Prompt{Kind: booking.PromptCancelled}, "")
	}
	b.log.Error("chat conversation failed", zap.Int64("chat_id", chatID), zap.Error(err))
	return RenderPrompt(booking.Prompt{Kind: booking.PromptIdle}, "Something went wrong, please try again.")
}

func (b *Bot) showChildren(ctx context.Context, chatID int64, cs session.ChatSession) error {
	gid, err := uuid.Parse(cs.GuardianID)
	if err != nil {
		return b.start(ctx, chatID)
	}
	children, err := b.dir.GuardianChildren(ctx, gid)
	if err != nil {
		b.log.Error("list children", zap.Int64("chat_id", chatID), zap.Error(err))
		return b.send(ctx, chatID, OutMessage{Text: promptText[booking.PromptUnavailable], Buttons: menuButtons()})
	}
	today := booking.StartOfDay(b.now().In(b.loc))
	return b.send(ctx, chatID, OutMessage{Text: childrenText(children, today), Buttons: menuButtons()})
}

func (b *Bot) showHistory(ctx context.Context, chatID int64, cs session.ChatSession) error {
	gid, err := uuid.Parse(cs.GuardianID)
	if err != nil {
		return b.start(ctx, chatID)
	}
	appts, err := b.dir.GuardianAppointments(ctx, gid, historyLimit)
	if err != nil {
		b.log.Error("list appointments", zap.Int64("chat_id", chatID), zap.Error(err))
		return b.send(ctx, chatID, OutMessage{Text: promptText[booking.PromptUnavailable], Buttons: menuButtons()})
	}
	return b.send(ctx, chatID, OutMessage{Text: historyText(appts), Buttons: menuButtons()})
}

func (b *Bot) send(ctx context.Context, chatID int64, msg OutMessage) error {
	if err := b.out.Send(ctx, chatID, msg); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}

// Reminders sends appointment reminders through a Messenger.
type Reminders struct {
	out Messenger
}

func NewReminders(out Messenger) *Reminders {
	return &Reminders{out: out}
}

func (r *Reminders) SendReminder(ctx context.Context, rem clinic.Reminder) error {
	return r.out.Send(ctx, rem.ChatID, OutMessage{Text: reminderText(rem)})
}
