package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
	"github.com/hackgods/pediatric-clinic-booking/internal/logging"
	redisclient "github.com/hackgods/pediatric-clinic-booking/internal/redis"
)

const (
	EventAppointmentBooked = "APPOINTMENT_BOOKED"
	EventReminderSent      = "REMINDER_SENT"
	EventChatLinked        = "CHAT_LINKED"
)

var (
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
	ErrChildNotLinked  = errors.New("child does not belong to this guardian")
	ErrPastSlot        = errors.New("slot is in the past")
	ErrSlotNotOffered  = errors.New("time is outside clinic hours")
	ErrInvalidID       = errors.New("invalid identifier")
	ErrInvalidSlot     = errors.New("invalid date or time")
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ReminderSender delivers one reminder to a chat.
type ReminderSender interface {
	SendReminder(ctx context.Context, r Reminder) error
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	schedule Schedule
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, schedule Schedule, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		schedule: schedule,
		log:      logging.OrNop(logger),
		now:      time.Now,
	}
}

// SetClock replaces the clock used for past-slot checks.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Schedule() Schedule { return s.schedule }

// ListChildren implements booking.Directory.
func (s *Service) ListChildren(ctx context.Context, guardianID string) ([]booking.Child, error) {
	gid, err := uuid.Parse(guardianID)
	if err != nil {
		return nil, fmt.Errorf("%w: guardian %q", ErrInvalidID, guardianID)
	}

	children, err := s.repo.ListChildrenByGuardian(ctx, gid)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}

	out := make([]booking.Child, 0, len(children))
	for _, c := range children {
		out = append(out, booking.Child{
			ID:          c.ID.String(),
			DisplayName: c.DisplayName(),
			BirthDate:   c.BirthDate,
		})
	}
	return out, nil
}

// FreeSlots implements booking.Directory.
func (s *Service) FreeSlots(ctx context.Context, date time.Time) ([]string, error) {
	if s.schedule.IsClosed(date) {
		return []string{}, nil
	}

	booked, err := s.repo.ListBookedTimes(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
	}
	return s.schedule.Free(date, booked, s.now()), nil
}

// CreateBooking implements booking.Booker.
func (s *Service) CreateBooking(ctx context.Context, req booking.Request) (booking.Confirmation, error) {
	childID, err := uuid.Parse(req.ChildID)
	if err != nil {
		return booking.Confirmation{}, fmt.Errorf("%w: child %q", ErrInvalidID, req.ChildID)
	}
	guardianID, err := uuid.Parse(req.GuardianID)
	if err != nil {
		return booking.Confirmation{}, fmt.Errorf("%w: guardian %q", ErrInvalidID, req.GuardianID)
	}
	date, err := s.validateSlot(req.Date, req.Time)
	if err != nil {
		return booking.Confirmation{}, err
	}

	linked, err := s.repo.IsGuardianOfChild(ctx, guardianID, childID)
	if err != nil {
		return booking.Confirmation{}, fmt.Errorf("check guardian link: %w", err)
	}
	if !linked {
		return booking.Confirmation{}, ErrChildNotLinked
	}

	created, err := s.reserve(ctx, NewAppointment{
		ChildID:    childID,
		GuardianID: guardianID,
		VisitDate:  date,
		VisitTime:  req.Time,
		VisitType:  string(req.VisitType),
	})
	if err != nil {
		return booking.Confirmation{}, err
	}

	s.log.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("guardian_id", guardianID.String()),
		zap.String("visit_date", req.Date),
		zap.String("visit_time", req.Time),
	)

	return booking.Confirmation{AppointmentID: created.ID.String()}, nil
}

// validateSlot parses a date and HH:MM time and checks that the slot is
// ahead of now and inside clinic hours.
func (s *Service) validateSlot(rawDate, at string) (time.Time, error) {
	date, err := booking.ParseDate(rawDate, s.schedule.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	if _, ok := booking.ParseClock(at); !ok {
		return time.Time{}, fmt.Errorf("%w: time %q", ErrInvalidSlot, at)
	}
	startsAt, err := s.schedule.Starts(date, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	if !startsAt.After(s.now()) {
		return time.Time{}, ErrPastSlot
	}
	if !s.schedule.WithinHours(startsAt) {
		return time.Time{}, ErrSlotNotOffered
	}
	return date, nil
}

// withSlot runs fn under the slot lock once no active appointment holds the
// slot. The partial unique index backs the lock up.
func (s *Service) withSlot(ctx context.Context, date time.Time, at string, fn func(ctx context.Context) error) error {
	key := redisclient.SlotLockKey(date.Format(booking.DateLayout), at)
	err := s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		existing, err := s.repo.GetActiveAppointmentAt(lockCtx, date, at)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if existing != nil {
			return ErrSlotTaken
		}
		return fn(lockCtx)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

// reserve inserts a validated appointment under the slot lock and records
// the booking event.
func (s *Service) reserve(ctx context.Context, in NewAppointment) (*Appointment, error) {
	var created *Appointment

	err := s.withSlot(ctx, in.VisitDate, in.VisitTime, func(lockCtx context.Context) error {
		appt, err := s.repo.CreateAppointment(lockCtx, in)
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, &appt.ID, EventAppointmentBooked, map[string]any{
			"child_id":    in.ChildID.String(),
			"guardian_id": in.GuardianID.String(),
			"visit_date":  in.VisitDate.Format(booking.DateLayout),
			"visit_time":  in.VisitTime,
			"visit_type":  in.VisitType,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) GetGuardianByPhone(ctx context.Context, phone string) (*Guardian, error) {
	return s.repo.GetGuardianByPhone(ctx, phone)
}

func (s *Service) GetGuardian(ctx context.Context, id uuid.UUID) (*Guardian, error) {
	g, err := s.repo.GetGuardianByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrGuardianNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load guardian: %w", err)
	}
	return g, nil
}

// GuardianChildren lists the guardian's children with full records.
func (s *Service) GuardianChildren(ctx context.Context, guardianID uuid.UUID) ([]Child, error) {
	children, err := s.repo.ListChildrenByGuardian(ctx, guardianID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return children, nil
}

// GuardianAppointments lists the most recent appointments of the guardian's
// children, newest first.
func (s *Service) GuardianAppointments(ctx context.Context, guardianID uuid.UUID, limit int) ([]AppointmentDetail, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	appts, err := s.repo.ListAppointmentsByGuardian(ctx, guardianID, limit)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) LinkChat(ctx context.Context, chatID int64, guardianID uuid.UUID) error {
	if err := s.repo.LinkChat(ctx, chatID, guardianID); err != nil {
		return err
	}
	s.logEvent(ctx, nil, EventChatLinked, map[string]any{
		"chat_id":     chatID,
		"guardian_id": guardianID.String(),
	})
	return nil
}

func (s *Service) GuardianForChat(ctx context.Context, chatID int64) (*Guardian, error) {
	return s.repo.GuardianForChat(ctx, chatID)
}

// SendDueReminders notifies linked chats about tomorrow's appointments.
// A failed send is logged and retried on the next run.
func (s *Service) SendDueReminders(ctx context.Context, sender ReminderSender) (int, error) {
	tomorrow := booking.StartOfDay(s.now().In(s.schedule.location())).AddDate(0, 0, 1)

	due, err := s.repo.ListDueReminders(ctx, tomorrow)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	sent := 0
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := sender.SendReminder(ctx, r); err != nil {
			s.log.Warn("send reminder failed",
				zap.String("appointment_id", r.AppointmentID.String()),
				zap.Int64("chat_id", r.ChatID),
				zap.Error(err),
			)
			continue
		}
		if err := s.repo.MarkReminderSent(ctx, r.AppointmentID, s.now()); err != nil {
			s.log.Error("mark reminder sent failed",
				zap.String("appointment_id", r.AppointmentID.String()),
				zap.Error(err),
			)
			continue
		}
		id := r.AppointmentID
		s.logEvent(ctx, &id, EventReminderSent, map[string]any{"chat_id": r.ChatID})
		sent++
	}
	return sent, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("insert event log", zap.String("event", eventType), zap.Error(err))
	}
}
