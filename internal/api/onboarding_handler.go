package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shaiso/onboarder/internal/telemetry"
)

// SubmitOnboarding принимает заявку и запускает run.
// POST /api/v1/onboarding
func (h *Handler) SubmitOnboarding(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}

	run, err := h.service.Submit(r.Context(), req.URL, req.ForceReonboard)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	telemetry.Submissions.WithLabelValues("api").Inc()
	Created(w, SubmitFromDomain(run))
}

// GetOnboarding возвращает статус run'а.
// GET /api/v1/onboarding/{session_id}
func (h *Handler) GetOnboarding(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	run, err := h.service.Status(r.Context(), id)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Success(w, StatusFromDomain(run))
}

// RetryStep возвращает упавший шаг в работу.
// POST /api/v1/onboarding/{session_id}/retry
func (h *Handler) RetryStep(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req RetryRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.service.RetryStep(r.Context(), id, req.StepName)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Success(w, RetryResponse{Success: true})
}

// CancelOnboarding отменяет run.
// POST /api/v1/onboarding/{session_id}/cancel
func (h *Handler) CancelOnboarding(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if HandleServiceError(w, h.logger, h.service.Cancel(r.Context(), id)) {
		return
	}

	run, err := h.service.Status(r.Context(), id)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Success(w, StatusFromDomain(run))
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("session_id"))
	if err != nil {
		BadRequest(w, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// decode читает JSON тело и проверяет теги validate.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			Error(w, http.StatusBadRequest, ErrCodeValidation, formatValidation(verrs))
			return false
		}
		InternalError(w, h.logger, err)
		return false
	}
	return true
}

func formatValidation(verrs validator.ValidationErrors) string {
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fmt.Sprintf("field %s failed on %q", strings.ToLower(fe.Field()), fe.Tag())
	}
	return strings.Join(parts, "; ")
}
