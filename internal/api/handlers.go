package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/pediatric-clinic-booking/internal/auth"
	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
	"github.com/hackgods/pediatric-clinic-booking/internal/clinic"
	"github.com/hackgods/pediatric-clinic-booking/internal/session"
)

// webSession is the conversation session used when the client sends no
// X-Booking-Session header.
const webSession = "web"

func loginHandler(authn Authenticator, tokens Tokens, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if strings.TrimSpace(req.Phone) == "" || req.Secret == "" {
			writeError(w, http.StatusBadRequest, "missing_credentials", "phone and secret are required")
			return
		}

		g, err := authn.Authenticate(r.Context(), req.Phone, req.Secret)
		if err != nil {
			handleLoginError(w, err, logger)
			return
		}

		token, expires, err := tokens.Issue(g.ID.String())
		if err != nil {
			logger.Error("issue token", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "could not issue token")
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{
			Token:      token,
			ExpiresAt:  expires,
			GuardianID: g.ID.String(),
			Name:       g.FullName(),
		})
	}
}

func handleLoginError(w http.ResponseWriter, err error, logger *zap.Logger) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidPhone):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too_many_attempts", err.Error())
	default:
		logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "login is temporarily unavailable")
	}
}

func guardianUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := GuardianIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "not authenticated")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "token subject is not a guardian id")
		return uuid.Nil, false
	}
	return id, true
}

func listChildrenHandler(dir GuardianDirectory, loc *time.Location, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gid, ok := guardianUUID(w, r)
		if !ok {
			return
		}

		children, err := dir.GuardianChildren(r.Context(), gid)
		if err != nil {
			logger.Error("list children", zap.String("guardian_id", gid.String()), zap.Error(err))
			writeError(w, http.StatusBadGateway, "directory_unavailable", "could not load children")
			return
		}

		today := booking.StartOfDay(time.Now().In(loc))
		resp := make([]ChildResponse, 0, len(children))
		for _, c := range children {
			resp = append(resp, ChildResponse{
				ID:          c.ID.String(),
				FirstName:   c.FirstName,
				LastName:    c.LastName,
				DisplayName: c.DisplayName(),
				BirthDate:   c.BirthDate.Format(booking.DateLayout),
				Age:         c.AgeOn(today),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listAppointmentsHandler(dir GuardianDirectory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gid, ok := guardianUUID(w, r)
		if !ok {
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		appts, err := dir.GuardianAppointments(r.Context(), gid, limit)
		if err != nil {
			logger.Error("list appointments", zap.String("guardian_id", gid.String()), zap.Error(err))
			writeError(w, http.StatusBadGateway, "directory_unavailable", "could not load appointments")
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			resp = append(resp, appointmentResponse(a.Appointment, a.ChildName))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type stepFunc func(ctx context.Context, key session.Key, in booking.Input) (booking.State, booking.Prompt, error)

type bookingHandlers struct {
	conv Conversations
	log  *zap.Logger
}

func (h *bookingHandlers) key(w http.ResponseWriter, r *http.Request) (session.Key, bool) {
	gid, ok := guardianUUID(w, r)
	if !ok {
		return session.Key{}, false
	}
	sess := strings.TrimSpace(r.Header.Get("X-Booking-Session"))
	if sess == "" {
		sess = webSession
	}
	return session.Key{GuardianID: gid.String(), Session: sess}, true
}

func (h *bookingHandlers) current(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	st, prompt, err := h.conv.Current(r.Context(), key)
	h.respond(w, key, "current", st, prompt, err)
}

func (h *bookingHandlers) begin(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	st, prompt, err := h.conv.Begin(r.Context(), key)
	h.respond(w, key, "begin", st, prompt, err)
}

func (h *bookingHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	st, prompt, err := h.conv.Cancel(r.Context(), key)
	h.respond(w, key, "cancel", st, prompt, err)
}

// step builds the handler for one selection endpoint. field picks the value
// this endpoint reads from the body.
func (h *bookingHandlers) step(name string, fn stepFunc, field func(StepRequest) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := h.key(w, r)
		if !ok {
			return
		}

		var req StepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in := booking.Value(field(req))
		switch {
		case req.Back:
			in = booking.Back()
		case req.Manual:
			in = booking.Manual()
		}

		st, prompt, err := fn(r.Context(), key, in)
		h.respond(w, key, name, st, prompt, err)
	}
}

func (h *bookingHandlers) respond(w http.ResponseWriter, key session.Key, op string, st booking.State, prompt booking.Prompt, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, ConversationResponse{State: st, Prompt: prompt})
		return
	}
	handleConversationError(w, key, op, st, prompt, err, h.log)
}

func handleConversationError(w http.ResponseWriter, key session.Key, op string, st booking.State, prompt booking.Prompt, err error, logger *zap.Logger) {
	if e, ok := booking.AsError(err); ok {
		status := http.StatusUnprocessableEntity
		switch e.Kind {
		case booking.KindUpstream:
			status = http.StatusBadGateway
			logger.Warn("booking upstream failure",
				zap.String("conversation", key.String()),
				zap.String("operation", op),
				zap.Error(err),
			)
		case booking.KindPrecondition:
			status = http.StatusConflict
		}
		writeJSON(w, status, ConversationResponse{
			State:  st,
			Prompt: prompt,
			Error:  &StepError{Kind: string(e.Kind), Code: e.Code, Message: e.Message},
		})
		return
	}

	switch {
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, "conversation_busy", err.Error())
	case errors.Is(err, session.ErrSuperseded):
		writeJSON(w, http.StatusConflict, ConversationResponse{
			State:  st,
			Prompt: prompt,
			Error:  &StepError{Kind: "conflict", Code: "conversation_superseded", Message: "the booking was cancelled while this request was running"},
		})
	default:
		logger.Error("conversation operation failed",
			zap.String("conversation", key.String()),
			zap.String("operation", op),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "conversation storage is unavailable")
	}
}

var _ GuardianDirectory = (*clinic.Service)(nil)
