package api

import (
	"net/http"
	"strings"
)

// MissingExtractions возвращает необязательные шаги, не выполненные
// в последнем run'е объекта.
// GET /api/v1/properties/{property_id}/missing-extractions
func (h *Handler) MissingExtractions(w http.ResponseWriter, r *http.Request) {
	propertyID := r.PathValue("property_id")
	if strings.TrimSpace(propertyID) == "" {
		BadRequest(w, "property id is required")
		return
	}

	missing, err := h.service.MissingExtractions(r.Context(), propertyID)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Success(w, MissingResponse{PropertyID: propertyID, Missing: missing})
}
