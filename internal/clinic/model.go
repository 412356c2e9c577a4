package clinic

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusNew       AppointmentStatus = "new"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Active appointments hold their slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusNew || s == StatusConfirmed
}

type Guardian struct {
	ID           uuid.UUID
	Phone        string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (g Guardian) FullName() string {
	return strings.TrimSpace(g.FirstName + " " + g.LastName)
}

type Child struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	BirthDate time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Child) DisplayName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// AgeOn returns full years on the given day.
func (c Child) AgeOn(day time.Time) int {
	if c.BirthDate.IsZero() {
		return 0
	}
	age := day.Year() - c.BirthDate.Year()
	if day.Month() < c.BirthDate.Month() || (day.Month() == c.BirthDate.Month() && day.Day() < c.BirthDate.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

type Appointment struct {
	ID             uuid.UUID
	ChildID        uuid.UUID
	GuardianID     uuid.UUID
	VisitDate      time.Time
	VisitTime      string
	VisitType      string
	Status         AppointmentStatus
	Comment        string
	ReminderSentAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type NewAppointment struct {
	ChildID    uuid.UUID
	GuardianID uuid.UUID
	VisitDate  time.Time
	VisitTime  string
	VisitType  string
	Status     AppointmentStatus // empty means new
	Comment    string
}

type AppointmentDetail struct {
	Appointment
	ChildName string
}

// Reminder is an upcoming appointment whose guardian has a linked chat.
type Reminder struct {
	AppointmentID uuid.UUID
	ChatID        int64
	ChildName     string
	VisitDate     time.Time
	VisitTime     string
	VisitType     string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Patient is a child as the front desk lists it.
type Patient struct {
	Child
	Guardians int
}

type NewPatient struct {
	FirstName  string
	LastName   string
	BirthDate  time.Time
	GuardianID *uuid.UUID
}

// MedicalTemplate prefills the diagnosis and prescriptions of a visit
// result. Both are opaque JSON documents.
type MedicalTemplate struct {
	ID            int64
	Name          string
	Diagnosis     []byte
	Prescriptions []byte
	CreatedAt     time.Time
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (p PaymentStatus) Valid() bool {
	return p == PaymentPending || p == PaymentPaid || p == PaymentCancelled
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

func (p PaymentMethod) Valid() bool {
	return p == PaymentCash || p == PaymentCard || p == PaymentTransfer
}

// Payment is recorded alongside a visit result. Amount is in minor units.
type Payment struct {
	Amount int64
	Status PaymentStatus
	Method PaymentMethod
}

// MedicalRecord is the result of a completed visit.
type MedicalRecord struct {
	ID              uuid.UUID
	AppointmentID   uuid.UUID
	TemplateID      *int64
	Complaints      string
	Examination     []byte
	Diagnosis       []byte
	Prescriptions   []byte
	Recommendations string
	Payment         Payment
	CreatedAt       time.Time
}

// VisitOutcome is what CompleteVisit stored.
type VisitOutcome struct {
	Record MedicalRecord
	Next   *Appointment
}
