package clinic

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/pediatric-clinic-booking/internal/redis"
)

type stubStaffRepo struct {
	appts         map[uuid.UUID]*Appointment
	firstGuardian map[uuid.UUID]uuid.UUID
	guardians     []Guardian
	patients      []NewPatient
	completed     []MedicalRecord
	followUps     []NewAppointment
}

func newStubStaffRepo() *stubStaffRepo {
	return &stubStaffRepo{
		appts:         map[uuid.UUID]*Appointment{},
		firstGuardian: map[uuid.UUID]uuid.UUID{},
	}
}

func (r *stubStaffRepo) ListPatients(ctx context.Context, limit, offset int) ([]Patient, error) {
	return nil, nil
}

func (r *stubStaffRepo) CreatePatient(ctx context.Context, p NewPatient) (*Child, error) {
	r.patients = append(r.patients, p)
	return &Child{ID: uuid.New(), FirstName: p.FirstName, LastName: p.LastName, BirthDate: p.BirthDate}, nil
}

func (r *stubStaffRepo) UpdatePatientName(ctx context.Context, id uuid.UUID, firstName, lastName string) (*Child, error) {
	return nil, ErrChildNotFound
}

func (r *stubStaffRepo) FirstGuardianOfChild(ctx context.Context, childID uuid.UUID) (uuid.UUID, error) {
	id, ok := r.firstGuardian[childID]
	if !ok {
		return uuid.Nil, ErrGuardianNotFound
	}
	return id, nil
}

func (r *stubStaffRepo) ListGuardians(ctx context.Context) ([]Guardian, error) {
	return r.guardians, nil
}

func (r *stubStaffRepo) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *stubStaffRepo) ListAppointmentsByDate(ctx context.Context, date time.Time) ([]AppointmentDetail, error) {
	return nil, nil
}

func (r *stubStaffRepo) SetAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrInvalidTransition
	}
	for _, f := range from {
		if a.Status == f {
			a.Status = to
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrInvalidTransition
}

func (r *stubStaffRepo) ListMedicalTemplates(ctx context.Context) ([]MedicalTemplate, error) {
	return nil, nil
}

func (r *stubStaffRepo) CompleteVisit(ctx context.Context, rec MedicalRecord, next *NewAppointment) (*VisitOutcome, error) {
	a, ok := r.appts[rec.AppointmentID]
	if !ok || !a.Status.Active() {
		return nil, ErrInvalidTransition
	}
	a.Status = StatusCompleted
	rec.ID = uuid.New()
	r.completed = append(r.completed, rec)

	out := &VisitOutcome{Record: rec}
	if next != nil {
		r.followUps = append(r.followUps, *next)
		out.Next = &Appointment{
			ID:         uuid.New(),
			ChildID:    next.ChildID,
			GuardianID: next.GuardianID,
			VisitDate:  next.VisitDate,
			VisitTime:  next.VisitTime,
			VisitType:  next.VisitType,
			Status:     next.Status,
		}
	}
	return out, nil
}

func newTestStaff(repo *stubRepo, staffRepo *stubStaffRepo, locker redisclient.Locker) *StaffService {
	return NewStaffService(newTestService(repo, locker), staffRepo, nil)
}

func (r *stubStaffRepo) addAppointment(status AppointmentStatus) *Appointment {
	a := &Appointment{
		ID:         uuid.New(),
		ChildID:    uuid.New(),
		GuardianID: uuid.New(),
		VisitDate:  time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
		VisitTime:  "10:30",
		VisitType:  "primary",
		Status:     status,
	}
	r.appts[a.ID] = a
	return a
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusNew, StatusConfirmed, true},
		{StatusNew, StatusCancelled, true},
		{StatusNew, StatusCompleted, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusNew, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusNew, StatusNew, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanBecome(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestChangeStatusAppliesTransitionAndLogs(t *testing.T) {
	repo := newStubRepo()
	staffRepo := newStubStaffRepo()
	staff := newTestStaff(repo, staffRepo, &memLocker{})
	appt := staffRepo.addAppointment(StatusNew)

	got, err := staff.ChangeStatus(context.Background(), appt.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.Len(t, repo.events, 1)
	assert.Equal(t, EventAppointmentStatus, repo.events[0].EventType)
	assert.Equal(t, appt.ID, *repo.events[0].AppointmentID)
	assert.JSONEq(t, `{"from":"new","to":"confirmed"}`, string(repo.events[0].Payload))

	_, err = staff.ChangeStatus(context.Background(), appt.ID, StatusNew)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = staff.ChangeStatus(context.Background(), appt.ID, "archived")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = staff.ChangeStatus(context.Background(), uuid.New(), StatusCancelled)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.Len(t, repo.events, 1)
}

func TestStaffBookDefaultsToFirstGuardian(t *testing.T) {
	repo := newStubRepo()
	staffRepo := newStubStaffRepo()
	locker := &memLocker{}
	staff := newTestStaff(repo, staffRepo, locker)
	child, guardian := uuid.New(), uuid.New()
	staffRepo.firstGuardian[child] = guardian

	appt, err := staff.Book(context.Background(), StaffBooking{
		ChildID:   child,
		Date:      "2025-01-09",
		Time:      "10:15",
		VisitType: "Vaccination",
		Comment:   " second dose ",
	})
	require.NoError(t, err)
	assert.Equal(t, guardian, appt.GuardianID)
	assert.Equal(t, StatusNew, appt.Status)

	require.Len(t, repo.appointments, 1)
	assert.Equal(t, "vaccination", repo.appointments[0].VisitType)
	assert.Equal(t, "second dose", repo.appointments[0].Comment)
	assert.Equal(t, []string{redisclient.SlotLockKey("2025-01-09", "10:15")}, locker.keys)
	require.Len(t, repo.events, 1)
	assert.Equal(t, EventAppointmentBooked, repo.events[0].EventType)
}

func TestStaffBookRejections(t *testing.T) {
	linkedChild, linkedGuardian := uuid.New(), uuid.New()
	orphan := uuid.New()
	stranger := uuid.New()

	tests := []struct {
		name string
		in   StaffBooking
		want error
	}{
		{"unknown visit type", StaffBooking{ChildID: linkedChild, Date: "2025-01-09", Time: "09:00", VisitType: "checkup"}, ErrInvalidVisitType},
		{"malformed time", StaffBooking{ChildID: linkedChild, Date: "2025-01-09", Time: "9", VisitType: "primary"}, ErrInvalidSlot},
		{"malformed date", StaffBooking{ChildID: linkedChild, Date: "09.01.2025", Time: "09:00", VisitType: "primary"}, ErrInvalidSlot},
		{"past", StaffBooking{ChildID: linkedChild, Date: "2025-01-08", Time: "09:00", VisitType: "primary"}, ErrPastSlot},
		{"after hours", StaffBooking{ChildID: linkedChild, Date: "2025-01-09", Time: "12:00", VisitType: "primary"}, ErrSlotNotOffered},
		{"no guardian", StaffBooking{ChildID: orphan, Date: "2025-01-09", Time: "09:00", VisitType: "primary"}, ErrChildNotLinked},
		{"wrong guardian", StaffBooking{ChildID: linkedChild, GuardianID: &stranger, Date: "2025-01-09", Time: "09:00", VisitType: "primary"}, ErrChildNotLinked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			repo.links[[2]uuid.UUID{linkedGuardian, linkedChild}] = true
			staffRepo := newStubStaffRepo()
			staffRepo.firstGuardian[linkedChild] = linkedGuardian
			staff := newTestStaff(repo, staffRepo, &memLocker{})

			_, err := staff.Book(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, repo.appointments)
		})
	}
}

func TestStaffBookRespectsGuardianBookings(t *testing.T) {
	repo := newStubRepo()
	staffRepo := newStubStaffRepo()
	staff := newTestStaff(repo, staffRepo, &memLocker{})

	req := linkedRequest(repo)
	_, err := staff.svc.CreateBooking(context.Background(), req)
	require.NoError(t, err)

	child := uuid.New()
	staffRepo.firstGuardian[child] = uuid.New()
	_, err = staff.Book(context.Background(), StaffBooking{ChildID: child, Date: req.Date, Time: req.Time, VisitType: "repeat"})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Len(t, repo.appointments, 1)
}

func TestRecordVisitCompletesAndBooksFollowUp(t *testing.T) {
	repo := newStubRepo()
	staffRepo := newStubStaffRepo()
	locker := &memLocker{}
	staff := newTestStaff(repo, staffRepo, locker)
	appt := staffRepo.addAppointment(StatusConfirmed)
	templateID := int64(2)

	out, err := staff.RecordVisit(context.Background(), VisitResult{
		AppointmentID: appt.ID,
		TemplateID:    &templateID,
		Complaints:    " cough ",
		Diagnosis:     json.RawMessage(`{"code":"J20.9"}`),
		Payment:       Payment{Amount: 150000, Status: PaymentPaid},
		Next:          &NextVisit{Date: "2025-01-15", Time: "09:30"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, staffRepo.appts[appt.ID].Status)

	require.Len(t, staffRepo.completed, 1)
	rec := staffRepo.completed[0]
	assert.Equal(t, "cough", rec.Complaints)
	assert.JSONEq(t, `{}`, string(rec.Examination))
	assert.JSONEq(t, `{"code":"J20.9"}`, string(rec.Diagnosis))
	assert.JSONEq(t, `[]`, string(rec.Prescriptions))
	assert.Equal(t, Payment{Amount: 150000, Status: PaymentPaid, Method: PaymentCash}, rec.Payment)
	assert.Equal(t, &templateID, rec.TemplateID)

	require.Len(t, staffRepo.followUps, 1)
	next := staffRepo.followUps[0]
	assert.Equal(t, appt.ChildID, next.ChildID)
	assert.Equal(t, appt.GuardianID, next.GuardianID)
	assert.Equal(t, StatusConfirmed, next.Status)
	assert.Equal(t, "repeat", next.VisitType)
	assert.Equal(t, []string{redisclient.SlotLockKey("2025-01-15", "09:30")}, locker.keys)

	require.NotNil(t, out.Next)
	require.Len(t, repo.events, 2)
	assert.Equal(t, EventVisitCompleted, repo.events[0].EventType)
	assert.Equal(t, EventAppointmentBooked, repo.events[1].EventType)
	assert.Equal(t, out.Next.ID, *repo.events[1].AppointmentID)
}

func TestRecordVisitWithoutFollowUpTakesNoLock(t *testing.T) {
	repo := newStubRepo()
	staffRepo := newStubStaffRepo()
	locker := &memLocker{}
	staff := newTestStaff(repo, staffRepo, locker)
	appt := staffRepo.addAppointment(StatusNew)

	out, err := staff.RecordVisit(context.Background(), VisitResult{AppointmentID: appt.ID})
	require.NoError(t, err)
	assert.Nil(t, out.Next)
	assert.Empty(t, locker.keys)
	assert.Equal(t, PaymentPending, staffRepo.completed[0].Payment.Status)
}

func TestRecordVisitRejections(t *testing.T) {
	tests := []struct {
		name   string
		status AppointmentStatus
		mutate func(*VisitResult)
		want   error
	}{
		{"already completed", StatusCompleted, func(v *VisitResult) {}, ErrInvalidTransition},
		{"cancelled", StatusCancelled, func(v *VisitResult) {}, ErrInvalidTransition},
		{"broken examination", StatusNew, func(v *VisitResult) { v.Examination = json.RawMessage(`{"temp":`) }, ErrInvalidVisitResult},
		{"negative amount", StatusNew, func(v *VisitResult) { v.Payment.Amount = -1 }, ErrInvalidVisitResult},
		{"unknown method", StatusNew, func(v *VisitResult) { v.Payment.Method = "barter" }, ErrInvalidVisitResult},
		{"follow-up in the past", StatusNew, func(v *VisitResult) { v.Next = &NextVisit{Date: "2025-01-07", Time: "09:00"} }, ErrPastSlot},
		{"follow-up type", StatusNew, func(v *VisitResult) { v.Next = &NextVisit{Date: "2025-01-09", Time: "09:00", VisitType: "control"} }, ErrInvalidVisitType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			staffRepo := newStubStaffRepo()
			staff := newTestStaff(repo, staffRepo, &memLocker{})
			appt := staffRepo.addAppointment(tt.status)
			v := VisitResult{AppointmentID: appt.ID}
			tt.mutate(&v)

			_, err := staff.RecordVisit(context.Background(), v)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, staffRepo.completed)
			assert.Equal(t, tt.status, staffRepo.appts[appt.ID].Status)
		})
	}
}

func TestRecordVisitFollowUpSlotTaken(t *testing.T) {
	repo := newStubRepo()
	staffRepo := newStubStaffRepo()
	staff := newTestStaff(repo, staffRepo, &memLocker{})
	appt := staffRepo.addAppointment(StatusNew)

	req := linkedRequest(repo)
	_, err := staff.svc.CreateBooking(context.Background(), req)
	require.NoError(t, err)

	_, err = staff.RecordVisit(context.Background(), VisitResult{
		AppointmentID: appt.ID,
		Next:          &NextVisit{Date: req.Date, Time: req.Time},
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Empty(t, staffRepo.completed)
	assert.Equal(t, StatusNew, staffRepo.appts[appt.ID].Status)
}

func TestCreatePatientValidatesAndLogs(t *testing.T) {
	repo := newStubRepo()
	staffRepo := newStubStaffRepo()
	staff := newTestStaff(repo, staffRepo, &memLocker{})
	birth := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	gid := uuid.New()

	_, err := staff.CreatePatient(context.Background(), NewPatient{FirstName: " ", LastName: "Petrov", BirthDate: birth})
	assert.ErrorIs(t, err, ErrInvalidPatient)
	_, err = staff.CreatePatient(context.Background(), NewPatient{FirstName: "Ivan", LastName: "Petrov", BirthDate: serviceNow.AddDate(0, 0, 2)})
	assert.ErrorIs(t, err, ErrInvalidPatient)
	assert.Empty(t, staffRepo.patients)

	child, err := staff.CreatePatient(context.Background(), NewPatient{FirstName: " Ivan ", LastName: "Petrov", BirthDate: birth, GuardianID: &gid})
	require.NoError(t, err)
	assert.Equal(t, "Ivan Petrov", child.DisplayName())
	require.Len(t, repo.events, 1)
	assert.Equal(t, EventPatientCreated, repo.events[0].EventType)
	assert.Nil(t, repo.events[0].AppointmentID)
	assert.JSONEq(t, `{"child_id":"`+child.ID.String()+`","guardian_id":"`+gid.String()+`"}`, string(repo.events[0].Payload))
}

func TestRenamePatientRequiresNames(t *testing.T) {
	staff := newTestStaff(newStubRepo(), newStubStaffRepo(), &memLocker{})

	_, err := staff.RenamePatient(context.Background(), uuid.New(), "Ivan", "")
	assert.ErrorIs(t, err, ErrInvalidPatient)

	_, err = staff.RenamePatient(context.Background(), uuid.New(), "Ivan", "Petrov")
	assert.ErrorIs(t, err, ErrChildNotFound)
}

func TestGuardiansNeverCarryHashes(t *testing.T) {
	staffRepo := newStubStaffRepo()
	staffRepo.guardians = []Guardian{{ID: uuid.New(), Phone: "+79990001122", PasswordHash: "hash"}}
	staff := newTestStaff(newStubRepo(), staffRepo, &memLocker{})

	got, err := staff.Guardians(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].PasswordHash)
	assert.Equal(t, "+79990001122", got[0].Phone)
}
