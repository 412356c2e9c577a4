package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/pediatric-clinic-booking/internal/auth"
	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
	"github.com/hackgods/pediatric-clinic-booking/internal/clinic"
)

// StaffDesk serves the front desk.
type StaffDesk interface {
	Patients(ctx context.Context, limit, offset int) ([]clinic.Patient, error)
	CreatePatient(ctx context.Context, p clinic.NewPatient) (*clinic.Child, error)
	RenamePatient(ctx context.Context, id uuid.UUID, firstName, lastName string) (*clinic.Child, error)
	Guardians(ctx context.Context) ([]clinic.Guardian, error)

	AppointmentsOn(ctx context.Context, day time.Time) ([]clinic.AppointmentDetail, error)
	Book(ctx context.Context, b clinic.StaffBooking) (*clinic.Appointment, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, to clinic.AppointmentStatus) (*clinic.Appointment, error)

	Templates(ctx context.Context) ([]clinic.MedicalTemplate, error)
	RecordVisit(ctx context.Context, v clinic.VisitResult) (*clinic.VisitOutcome, error)
}

type StaffAuthenticator interface {
	Authenticate(ctx context.Context, login, secret string) (string, error)
}

var _ StaffDesk = (*clinic.StaffService)(nil)

type staffHandlers struct {
	desk StaffDesk
	loc  *time.Location
	log  *zap.Logger
}

func staffLoginHandler(authn StaffAuthenticator, tokens Tokens, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StaffLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if strings.TrimSpace(req.Login) == "" || req.Secret == "" {
			writeError(w, http.StatusBadRequest, "missing_credentials", "login and secret are required")
			return
		}

		login, err := authn.Authenticate(r.Context(), req.Login, req.Secret)
		if err != nil {
			if errors.Is(err, auth.ErrStaffLoginDisabled) {
				writeError(w, http.StatusServiceUnavailable, "staff_login_disabled", err.Error())
				return
			}
			handleLoginError(w, err, logger)
			return
		}

		token, expires, err := tokens.IssueStaff(login)
		if err != nil {
			logger.Error("issue staff token", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "could not issue token")
			return
		}
		writeJSON(w, http.StatusOK, StaffLoginResponse{Token: token, ExpiresAt: expires, Login: login})
	}
}

func (h *staffHandlers) listPatients(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}

	patients, err := h.desk.Patients(r.Context(), limit, offset)
	if err != nil {
		h.fail(w, r, "list_patients", err)
		return
	}

	today := booking.StartOfDay(time.Now().In(h.loc))
	resp := make([]PatientResponse, 0, len(patients))
	for _, p := range patients {
		resp = append(resp, patientResponse(p.Child, p.Guardians, today))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *staffHandlers) createPatient(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if !decodeBody(w, r, &req) {
		return
	}
	birth, err := booking.ParseDate(req.BirthDate, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_birth_date", "birth_date must be YYYY-MM-DD")
		return
	}

	in := clinic.NewPatient{FirstName: req.FirstName, LastName: req.LastName, BirthDate: birth}
	guardians := 0
	if req.GuardianID != "" {
		gid, err := uuid.Parse(req.GuardianID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "guardian_id is not a valid id")
			return
		}
		in.GuardianID = &gid
		guardians = 1
	}

	child, err := h.desk.CreatePatient(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create_patient", err)
		return
	}
	writeJSON(w, http.StatusCreated, patientResponse(*child, guardians, booking.StartOfDay(time.Now().In(h.loc))))
}

func (h *staffHandlers) renamePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req PatientRequest
	if !decodeBody(w, r, &req) {
		return
	}

	child, err := h.desk.RenamePatient(r.Context(), id, req.FirstName, req.LastName)
	if err != nil {
		h.fail(w, r, "rename_patient", err)
		return
	}
	writeJSON(w, http.StatusOK, patientResponse(*child, 0, booking.StartOfDay(time.Now().In(h.loc))))
}

func (h *staffHandlers) listGuardians(w http.ResponseWriter, r *http.Request) {
	guardians, err := h.desk.Guardians(r.Context())
	if err != nil {
		h.fail(w, r, "list_guardians", err)
		return
	}

	resp := make([]GuardianResponse, 0, len(guardians))
	for _, g := range guardians {
		resp = append(resp, GuardianResponse{
			ID:        g.ID.String(),
			Phone:     g.Phone,
			FirstName: g.FirstName,
			LastName:  g.LastName,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *staffHandlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	day := booking.StartOfDay(time.Now().In(h.loc))
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := booking.ParseDate(raw, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	appts, err := h.desk.AppointmentsOn(r.Context(), day)
	if err != nil {
		h.fail(w, r, "list_appointments", err)
		return
	}

	resp := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		resp = append(resp, appointmentResponse(a.Appointment, a.ChildName))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *staffHandlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req StaffAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	childID, err := uuid.Parse(req.ChildID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "child_id is not a valid id")
		return
	}

	b := clinic.StaffBooking{
		ChildID:   childID,
		Date:      req.Date,
		Time:      req.Time,
		VisitType: req.VisitType,
		Comment:   req.Comment,
	}
	if req.GuardianID != "" {
		gid, err := uuid.Parse(req.GuardianID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "guardian_id is not a valid id")
			return
		}
		b.GuardianID = &gid
	}

	appt, err := h.desk.Book(r.Context(), b)
	if err != nil {
		h.fail(w, r, "create_appointment", err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentResponse(*appt, ""))
}

func (h *staffHandlers) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := h.desk.ChangeStatus(r.Context(), id, clinic.AppointmentStatus(strings.ToLower(strings.TrimSpace(req.Status))))
	if err != nil {
		h.fail(w, r, "change_status", err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(*appt, ""))
}

func (h *staffHandlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.desk.Templates(r.Context())
	if err != nil {
		h.fail(w, r, "list_templates", err)
		return
	}

	resp := make([]TemplateResponse, 0, len(templates))
	for _, t := range templates {
		resp = append(resp, TemplateResponse{
			ID:            t.ID,
			Name:          t.Name,
			Diagnosis:     json.RawMessage(t.Diagnosis),
			Prescriptions: json.RawMessage(t.Prescriptions),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *staffHandlers) recordVisit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req VisitResultRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v := clinic.VisitResult{
		AppointmentID:   id,
		TemplateID:      req.TemplateID,
		Complaints:      req.Complaints,
		Examination:     req.Examination,
		Diagnosis:       req.Diagnosis,
		Prescriptions:   req.Prescriptions,
		Recommendations: req.Recommendations,
		Payment: clinic.Payment{
			Amount: req.Payment.Amount,
			Status: clinic.PaymentStatus(req.Payment.Status),
			Method: clinic.PaymentMethod(req.Payment.Method),
		},
	}
	if n := req.NextVisit; n != nil {
		v.Next = &clinic.NextVisit{Date: n.Date, Time: n.Time, VisitType: n.VisitType}
	}

	out, err := h.desk.RecordVisit(r.Context(), v)
	if err != nil {
		h.fail(w, r, "record_visit", err)
		return
	}

	resp := VisitResultResponse{
		MedicalRecordID: out.Record.ID.String(),
		AppointmentID:   id.String(),
	}
	if out.Next != nil {
		next := appointmentResponse(*out.Next, "")
		resp.NextAppointment = &next
	}
	writeJSON(w, http.StatusCreated, resp)
}

var staffErrors = []struct {
	err    error
	status int
	code   string
}{
	{clinic.ErrInvalidPatient, http.StatusBadRequest, "invalid_patient"},
	{clinic.ErrInvalidVisitType, http.StatusBadRequest, "invalid_visit_type"},
	{clinic.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{clinic.ErrInvalidVisitResult, http.StatusBadRequest, "invalid_visit_result"},
	{clinic.ErrInvalidSlot, http.StatusBadRequest, "invalid_slot"},
	{clinic.ErrChildNotFound, http.StatusNotFound, "patient_not_found"},
	{clinic.ErrGuardianNotFound, http.StatusNotFound, "guardian_not_found"},
	{clinic.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	{clinic.ErrTemplateNotFound, http.StatusNotFound, "template_not_found"},
	{clinic.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{clinic.ErrSlotTaken, http.StatusConflict, "slot_taken"},
	{clinic.ErrSlotBeingBooked, http.StatusConflict, "slot_busy"},
	{clinic.ErrPastSlot, http.StatusUnprocessableEntity, "past_slot"},
	{clinic.ErrSlotNotOffered, http.StatusUnprocessableEntity, "slot_not_offered"},
	{clinic.ErrChildNotLinked, http.StatusUnprocessableEntity, "child_not_linked"},
}

func (h *staffHandlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, e := range staffErrors {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.code, err.Error())
			return
		}
	}
	login, _ := StaffLoginFromContext(r.Context())
	h.log.Error("staff operation failed",
		zap.String("operation", op),
		zap.String("staff", login),
		zap.String("request_id", GetRequestID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "the clinic database is unavailable")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" is not a valid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func patientResponse(c clinic.Child, guardians int, today time.Time) PatientResponse {
	return PatientResponse{
		ID:        c.ID.String(),
		FirstName: c.FirstName,
		LastName:  c.LastName,
		BirthDate: c.BirthDate.Format(booking.DateLayout),
		Age:       c.AgeOn(today),
		Guardians: guardians,
	}
}

func appointmentResponse(a clinic.Appointment, childName string) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID.String(),
		ChildID:   a.ChildID.String(),
		ChildName: childName,
		Date:      a.VisitDate.Format(booking.DateLayout),
		Time:      a.VisitTime,
		VisitType: a.VisitType,
		Status:    string(a.Status),
		Comment:   a.Comment,
	}
}
