package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/apperr"
	"github.com/lalithlochan/bloodlink/internal/donation"
)

func (h *Handler) internalError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	h.logger.Error(op+" failed", append(fields, zap.Error(err))...)
	writeAppError(w, apperr.Internal(op, err))
}

// ListConstituencies handles GET /api/constituencies
func (h *Handler) ListConstituencies(w http.ResponseWriter, r *http.Request) {
	rows, err := h.directory.ListConstituencies(r.Context())
	if err != nil {
		h.internalError(w, "list constituencies", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ListHospitals handles GET /api/hospitals/{constituency}
func (h *Handler) ListHospitals(w http.ResponseWriter, r *http.Request) {
	constituency := chi.URLParam(r, "constituency")

	rows, err := h.directory.ListHospitals(r.Context(), constituency)
	if err != nil {
		h.internalError(w, "list hospitals", err, zap.String("constituency", constituency))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ListNotifications handles GET /api/notifications?limit=50
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	caller := callerID(r)
	rows, err := h.directory.ListNotifications(r.Context(), caller, limit)
	if err != nil {
		h.internalError(w, "list notifications", err, zap.Int64("user_id", caller))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": rows})
}

// GetMe handles GET /api/users/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.workflow.Profile(r.Context(), callerID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type profileBody struct {
	Fullname     *string `json:"fullname"`
	Phone        *string `json:"phone"`
	Availability *bool   `json:"availability"`
	Location     *string `json:"location"`
}

// UpdateMe handles PATCH /api/users/me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var body profileBody
	if err := decode(r, &body); err != nil {
		writeBadRequest(w, "Malformed JSON body")
		return
	}
	if body.Phone != nil {
		p := strings.TrimSpace(*body.Phone)
		body.Phone = &p
	}

	u, err := h.workflow.UpdateProfile(r.Context(), callerID(r), donation.ProfileUpdate{
		Fullname:     body.Fullname,
		Phone:        body.Phone,
		Availability: body.Availability,
		Location:     body.Location,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
