package api

import (
	"encoding/json"
	"time"

	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
)

type LoginRequest struct {
	Phone  string `json:"phone"`
	Secret string `json:"secret"`
}

type LoginResponse struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	GuardianID string    `json:"guardian_id"`
	Name       string    `json:"name"`
}

// StepRequest is the body of every booking step. Each endpoint reads its
// own value field; back and manual take precedence over it.
type StepRequest struct {
	ChildID   string `json:"child_id,omitempty"`
	VisitType string `json:"visit_type,omitempty"`
	Date      string `json:"date,omitempty"`
	Time      string `json:"time,omitempty"`
	Back      bool   `json:"back,omitempty"`
	Manual    bool   `json:"manual,omitempty"`
}

type ConversationResponse struct {
	State  booking.State  `json:"state"`
	Prompt booking.Prompt `json:"prompt"`
	Error  *StepError     `json:"error,omitempty"`
}

type StepError struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ChildResponse struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
	BirthDate   string `json:"birth_date"`
	Age         int    `json:"age"`
}

type AppointmentResponse struct {
	ID        string `json:"id"`
	ChildID   string `json:"child_id"`
	ChildName string `json:"child_name"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	VisitType string `json:"visit_type"`
	Status    string `json:"status"`
	Comment   string `json:"comment,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type StaffLoginRequest struct {
	Login  string `json:"login"`
	Secret string `json:"secret"`
}

type StaffLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Login     string    `json:"login"`
}

type PatientRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	BirthDate  string `json:"birth_date,omitempty"`
	GuardianID string `json:"guardian_id,omitempty"`
}

type PatientResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date"`
	Age       int    `json:"age"`
	Guardians int    `json:"guardians"`
}

// GuardianResponse never carries credentials.
type GuardianResponse struct {
	ID        string `json:"id"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type StaffAppointmentRequest struct {
	ChildID    string `json:"child_id"`
	GuardianID string `json:"guardian_id,omitempty"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	VisitType  string `json:"visit_type"`
	Comment    string `json:"comment,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type TemplateResponse struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Diagnosis     json.RawMessage `json:"diagnosis"`
	Prescriptions json.RawMessage `json:"prescriptions"`
}

type NextVisitRequest struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	VisitType string `json:"visit_type,omitempty"`
}

// PaymentRequest amounts are in minor currency units.
type PaymentRequest struct {
	Amount int64  `json:"amount"`
	Status string `json:"status,omitempty"`
	Method string `json:"method,omitempty"`
}

type VisitResultRequest struct {
	TemplateID      *int64            `json:"template_id,omitempty"`
	Complaints      string            `json:"complaints,omitempty"`
	Examination     json.RawMessage   `json:"examination,omitempty"`
	Diagnosis       json.RawMessage   `json:"diagnosis,omitempty"`
	Prescriptions   json.RawMessage   `json:"prescriptions,omitempty"`
	Recommendations string            `json:"recommendations,omitempty"`
	Payment         PaymentRequest    `json:"payment"`
	NextVisit       *NextVisitRequest `json:"next_visit,omitempty"`
}

type VisitResultResponse struct {
	MedicalRecordID string               `json:"medical_record_id"`
	AppointmentID   string               `json:"appointment_id"`
	NextAppointment *AppointmentResponse `json:"next_appointment,omitempty"`
}
