package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrGuardianNotFound    = errors.New("guardian not found")
	ErrChildNotFound       = errors.New("child not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrChatNotLinked       = errors.New("chat is not linked to a guardian")
	ErrSlotTaken           = errors.New("slot already has an active appointment")
	ErrInvalidTransition   = errors.New("appointment status does not allow this change")
	ErrTemplateNotFound    = errors.New("medical template not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetGuardianByID(ctx context.Context, id uuid.UUID) (*Guardian, error)
	GetGuardianByPhone(ctx context.Context, phone string) (*Guardian, error)

	ListChildrenByGuardian(ctx context.Context, guardianID uuid.UUID) ([]Child, error)
	IsGuardianOfChild(ctx context.Context, guardianID, childID uuid.UUID) (bool, error)

	// Slot occupancy
	ListBookedTimes(ctx context.Context, date time.Time) ([]string, error)
	GetActiveAppointmentAt(ctx context.Context, date time.Time, at string) (*Appointment, error)

	CreateAppointment(ctx context.Context, a NewAppointment) (*Appointment, error)
	ListAppointmentsByGuardian(ctx context.Context, guardianID uuid.UUID, limit int) ([]AppointmentDetail, error)

	// Chat links
	LinkChat(ctx context.Context, chatID int64, guardianID uuid.UUID) error
	GuardianForChat(ctx context.Context, chatID int64) (*Guardian, error)

	// Reminder worker
	ListDueReminders(ctx context.Context, date time.Time) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, appointmentID uuid.UUID, at time.Time) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// StaffRepository holds the front-desk queries.
type StaffRepository interface {
	ListPatients(ctx context.Context, limit, offset int) ([]Patient, error)
	CreatePatient(ctx context.Context, p NewPatient) (*Child, error)
	UpdatePatientName(ctx context.Context, id uuid.UUID, firstName, lastName string) (*Child, error)
	FirstGuardianOfChild(ctx context.Context, childID uuid.UUID) (uuid.UUID, error)
	ListGuardians(ctx context.Context) ([]Guardian, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByDate(ctx context.Context, date time.Time) ([]AppointmentDetail, error)
	SetAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error)

	ListMedicalTemplates(ctx context.Context) ([]MedicalTemplate, error)
	CompleteVisit(ctx context.Context, rec MedicalRecord, next *NewAppointment) (*VisitOutcome, error)
}
