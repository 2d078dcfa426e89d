package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lalithlochan/bloodlink/internal/donation"
)

type appointmentBody struct {
	Date     string  `json:"date"`
	Location string  `json:"location"`
	Units    flexInt `json:"units"`
	Status   string  `json:"status"`
}

// CreateAppointment handles POST /api/appointments
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var body appointmentBody
	if err := decode(r, &body); err != nil {
		writeBadRequest(w, decodeFailure(err))
		return
	}

	in := donation.NewAppointment{Location: body.Location, Units: int(body.Units), Status: body.Status}
	if body.Date != "" {
		d, ok := parseDate(body.Date)
		if !ok {
			writeBadRequest(w, "Invalid date.")
			return
		}
		in.Date = d
	}

	appt, err := h.appointments.Create(r.Context(), callerID(r), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// ListAppointments handles GET /api/appointments
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	rows, err := h.appointments.List(r.Context(), callerID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ListAllAppointments handles GET /api/appointments/all
func (h *Handler) ListAllAppointments(w http.ResponseWriter, r *http.Request) {
	rows, err := h.appointments.ListAll(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// UpdateAppointment handles PUT /api/appointments/{id}
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "Invalid appointment id.")
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := decode(r, &body); err != nil {
		writeBadRequest(w, "Malformed JSON body")
		return
	}

	if err := h.appointments.UpdateStatus(r.Context(), id, body.Status); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Appointment updated.",
		"id":      id,
		"status":  body.Status,
	})
}
