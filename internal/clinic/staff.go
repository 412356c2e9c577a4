package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
	"github.com/hackgods/pediatric-clinic-booking/internal/logging"
)

const (
	EventPatientCreated    = "PATIENT_CREATED"
	EventAppointmentStatus = "APPOINTMENT_STATUS_CHANGED"
	EventVisitCompleted    = "VISIT_COMPLETED"
)

var (
	ErrInvalidPatient     = errors.New("invalid patient")
	ErrInvalidVisitType   = errors.New("unknown visit type")
	ErrInvalidStatus      = errors.New("unknown appointment status")
	ErrInvalidVisitResult = errors.New("invalid visit result")
)

const (
	defaultPatientPage = 50
	maxPatientPage     = 200
)

// transitions lists where each status may move. Completed and cancelled are
// final.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusNew:       {StatusConfirmed, StatusCompleted, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusNew, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s AppointmentStatus) CanBecome(to AppointmentStatus) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// StaffBooking is an appointment entered by the front desk. A nil guardian
// books on behalf of the child's first linked guardian.
type StaffBooking struct {
	ChildID    uuid.UUID
	GuardianID *uuid.UUID
	Date       string
	Time       string
	VisitType  string
	Comment    string
}

type NextVisit struct {
	Date      string
	Time      string
	VisitType string // defaults to repeat
}

// VisitResult is what the doctor enters when a visit ends.
type VisitResult struct {
	AppointmentID   uuid.UUID
	TemplateID      *int64
	Complaints      string
	Examination     json.RawMessage
	Diagnosis       json.RawMessage
	Prescriptions   json.RawMessage
	Recommendations string
	Payment         Payment
	Next            *NextVisit
}

// StaffService serves the front desk: patients, the day's appointments and
// visit results. Bookings go through the same slot checks and lock as the
// guardian flow.
type StaffService struct {
	svc  *Service
	repo StaffRepository
	log  *zap.Logger
}

func NewStaffService(svc *Service, repo StaffRepository, logger *zap.Logger) *StaffService {
	return &StaffService{svc: svc, repo: repo, log: logging.OrNop(logger)}
}

func (s *StaffService) Patients(ctx context.Context, limit, offset int) ([]Patient, error) {
	if limit <= 0 {
		limit = defaultPatientPage
	}
	if limit > maxPatientPage {
		limit = maxPatientPage
	}
	if offset < 0 {
		offset = 0
	}

	patients, err := s.repo.ListPatients(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

func (s *StaffService) CreatePatient(ctx context.Context, p NewPatient) (*Child, error) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidPatient)
	}
	today := booking.StartOfDay(s.svc.now().In(s.svc.schedule.location()))
	if p.BirthDate.IsZero() || p.BirthDate.After(today) {
		return nil, fmt.Errorf("%w: birth date must not be in the future", ErrInvalidPatient)
	}

	child, err := s.repo.CreatePatient(ctx, p)
	if err != nil {
		if errors.Is(err, ErrGuardianNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create patient: %w", err)
	}

	payload := map[string]any{"child_id": child.ID.String()}
	if p.GuardianID != nil {
		payload["guardian_id"] = p.GuardianID.String()
	}
	s.svc.logEvent(ctx, nil, EventPatientCreated, payload)
	return child, nil
}

func (s *StaffService) RenamePatient(ctx context.Context, id uuid.UUID, firstName, lastName string) (*Child, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidPatient)
	}

	child, err := s.repo.UpdatePatientName(ctx, id, firstName, lastName)
	if err != nil {
		if errors.Is(err, ErrChildNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("rename patient: %w", err)
	}
	return child, nil
}

// Guardians lists guardian accounts without their password hashes.
func (s *StaffService) Guardians(ctx context.Context) ([]Guardian, error) {
	guardians, err := s.repo.ListGuardians(ctx)
	if err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	for i := range guardians {
		guardians[i].PasswordHash = ""
	}
	return guardians, nil
}

func (s *StaffService) AppointmentsOn(ctx context.Context, day time.Time) ([]AppointmentDetail, error) {
	appts, err := s.repo.ListAppointmentsByDate(ctx, booking.StartOfDay(day.In(s.svc.schedule.location())))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// Book creates an appointment for a patient. Manually entered times need
// not sit on the grid but must fall inside clinic hours.
func (s *StaffService) Book(ctx context.Context, b StaffBooking) (*Appointment, error) {
	visitType, ok := booking.ParseVisitType(b.VisitType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVisitType, b.VisitType)
	}
	date, err := s.svc.validateSlot(b.Date, b.Time)
	if err != nil {
		return nil, err
	}

	guardianID, err := s.guardianFor(ctx, b.ChildID, b.GuardianID)
	if err != nil {
		return nil, err
	}

	appt, err := s.svc.reserve(ctx, NewAppointment{
		ChildID:    b.ChildID,
		GuardianID: guardianID,
		VisitDate:  date,
		VisitTime:  b.Time,
		VisitType:  string(visitType),
		Comment:    strings.TrimSpace(b.Comment),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment booked by staff",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("child_id", b.ChildID.String()),
		zap.String("visit_date", b.Date),
		zap.String("visit_time", b.Time),
	)
	return appt, nil
}

func (s *StaffService) guardianFor(ctx context.Context, childID uuid.UUID, guardianID *uuid.UUID) (uuid.UUID, error) {
	if guardianID == nil {
		id, err := s.repo.FirstGuardianOfChild(ctx, childID)
		if errors.Is(err, ErrGuardianNotFound) {
			return uuid.Nil, ErrChildNotLinked
		}
		if err != nil {
			return uuid.Nil, err
		}
		return id, nil
	}

	linked, err := s.svc.repo.IsGuardianOfChild(ctx, *guardianID, childID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check guardian link: %w", err)
	}
	if !linked {
		return uuid.Nil, ErrChildNotLinked
	}
	return *guardianID, nil
}

// ChangeStatus applies one status transition. A concurrent change between
// the read and the write surfaces as ErrInvalidTransition.
func (s *StaffService) ChangeStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !current.Status.CanBecome(to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}

	updated, err := s.repo.SetAppointmentStatus(ctx, id, []AppointmentStatus{current.Status}, to)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.svc.logEvent(ctx, &updated.ID, EventAppointmentStatus, map[string]any{
		"from": string(current.Status),
		"to":   string(to),
	})
	return updated, nil
}

func (s *StaffService) Templates(ctx context.Context) ([]MedicalTemplate, error) {
	templates, err := s.repo.ListMedicalTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list medical templates: %w", err)
	}
	return templates, nil
}

// RecordVisit stores a visit result and completes its appointment. A
// follow-up visit is booked confirmed in the same transaction, under the
// follow-up slot's lock.
func (s *StaffService) RecordVisit(ctx context.Context, v VisitResult) (*VisitOutcome, error) {
	rec, err := v.record()
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointment(ctx, v.AppointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !appt.Status.Active() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, appt.Status)
	}

	var out *VisitOutcome
	if v.Next == nil {
		out, err = s.repo.CompleteVisit(ctx, rec, nil)
	} else {
		next, nextErr := s.followUp(appt, *v.Next)
		if nextErr != nil {
			return nil, nextErr
		}
		err = s.svc.withSlot(ctx, next.VisitDate, next.VisitTime, func(lockCtx context.Context) error {
			var completeErr error
			out, completeErr = s.repo.CompleteVisit(lockCtx, rec, next)
			return completeErr
		})
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrTemplateNotFound),
			errors.Is(err, ErrSlotTaken), errors.Is(err, ErrSlotBeingBooked):
			return nil, err
		}
		return nil, fmt.Errorf("complete visit: %w", err)
	}

	s.svc.logEvent(ctx, &appt.ID, EventVisitCompleted, map[string]any{
		"medical_record_id": out.Record.ID.String(),
		"payment_status":    string(rec.Payment.Status),
	})
	if out.Next != nil {
		s.svc.logEvent(ctx, &out.Next.ID, EventAppointmentBooked, map[string]any{
			"child_id":    out.Next.ChildID.String(),
			"guardian_id": out.Next.GuardianID.String(),
			"visit_date":  out.Next.VisitDate.Format(booking.DateLayout),
			"visit_time":  out.Next.VisitTime,
			"visit_type":  out.Next.VisitType,
		})
	}

	s.log.Info("visit completed",
		zap.String("appointment_id", appt.ID.String()),
		zap.Bool("follow_up", out.Next != nil),
	)
	return out, nil
}

func (s *StaffService) followUp(appt *Appointment, n NextVisit) (*NewAppointment, error) {
	visitType := booking.VisitRepeat
	if strings.TrimSpace(n.VisitType) != "" {
		vt, ok := booking.ParseVisitType(n.VisitType)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVisitType, n.VisitType)
		}
		visitType = vt
	}
	date, err := s.svc.validateSlot(n.Date, n.Time)
	if err != nil {
		return nil, err
	}
	return &NewAppointment{
		ChildID:    appt.ChildID,
		GuardianID: appt.GuardianID,
		VisitDate:  date,
		VisitTime:  n.Time,
		VisitType:  string(visitType),
		Status:     StatusConfirmed,
	}, nil
}

// record validates the free-form parts of a visit result and fills their
// defaults.
func (v VisitResult) record() (MedicalRecord, error) {
	docs := []struct {
		name string
		raw  json.RawMessage
		def  string
	}{
		{"examination", v.Examination, "{}"},
		{"diagnosis", v.Diagnosis, "{}"},
		{"prescriptions", v.Prescriptions, "[]"},
	}
	out := make([][]byte, len(docs))
	for i, d := range docs {
		raw := []byte(strings.TrimSpace(string(d.raw)))
		if len(raw) == 0 || string(raw) == "null" {
			raw = []byte(d.def)
		}
		if !json.Valid(raw) {
			return MedicalRecord{}, fmt.Errorf("%w: %s is not valid JSON", ErrInvalidVisitResult, d.name)
		}
		out[i] = raw
	}

	pay := v.Payment
	if pay.Status == "" {
		pay.Status = PaymentPending
	}
	if pay.Method == "" {
		pay.Method = PaymentCash
	}
	if pay.Amount < 0 || !pay.Status.Valid() || !pay.Method.Valid() {
		return MedicalRecord{}, fmt.Errorf("%w: payment must have a non-negative amount, a known status and method", ErrInvalidVisitResult)
	}

	return MedicalRecord{
		AppointmentID:   v.AppointmentID,
		TemplateID:      v.TemplateID,
		Complaints:      strings.TrimSpace(v.Complaints),
		Examination:     out[0],
		Diagnosis:       out[1],
		Prescriptions:   out[2],
		Recommendations: strings.TrimSpace(v.Recommendations),
		Payment:         pay,
	}, nil
}
