package api

import (
	"net/http"
	"strings"

	"github.com/lalithlochan/bloodlink/internal/donation"
	"github.com/lalithlochan/bloodlink/internal/lifecycle"
)

type createRequestBody struct {
	BloodType    string  `json:"blood_type"`
	UrgencyLevel string  `json:"urgency_level"`
	Units        flexInt `json:"units"`
	Location     string  `json:"location"`
	ContactInfo  string  `json:"contact_info"`
	DateNeeded   string  `json:"date_needed"`
}

// CreateRequest handles POST /api/blood-request
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decode(r, &body); err != nil {
		writeBadRequest(w, decodeFailure(err))
		return
	}

	in := donation.NewRequest{
		BloodType:    strings.TrimSpace(body.BloodType),
		UrgencyLevel: body.UrgencyLevel,
		Units:        int(body.Units),
		Location:     strings.TrimSpace(body.Location),
		ContactInfo:  body.ContactInfo,
	}
	if body.DateNeeded != "" {
		d, ok := parseDate(body.DateNeeded)
		if !ok {
			writeBadRequest(w, "Invalid date_needed.")
			return
		}
		in.DateNeeded = d
	}

	req, err := h.workflow.CreateRequest(r.Context(), callerID(r), in)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "Blood request submitted successfully!",
		"request_id": req.ID,
	})
}

// MatchFromRequest handles GET /api/blood-request/match-from-request?hospital=
func (h *Handler) MatchFromRequest(w http.ResponseWriter, r *http.Request) {
	hospital := strings.TrimSpace(r.URL.Query().Get("hospital"))

	res, err := h.workflow.MatchFromRequest(r.Context(), callerID(r), hospital)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sendOfferBody struct {
	DonorID      int64  `json:"donor_id"`
	RequestID    int64  `json:"request_id"`
	HospitalName string `json:"hospital_name"`
}

// SendDonorRequest handles POST /api/blood-request/send-donor-request
func (h *Handler) SendDonorRequest(w http.ResponseWriter, r *http.Request) {
	var body sendOfferBody
	if err := decode(r, &body); err != nil {
		writeBadRequest(w, "Malformed JSON body")
		return
	}

	offer, err := h.workflow.SendOffer(r.Context(), callerID(r), donation.OfferInput{
		DonorID:      body.DonorID,
		RequestID:    body.RequestID,
		HospitalName: body.HospitalName,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Request sent to donor.",
		"offer_id": offer.ID,
	})
}

type respondBody struct {
	RequestID int64  `json:"request_id"`
	Response  string `json:"response"`
}

// RespondToRequest handles POST /api/blood-request/donor-requests/respond
func (h *Handler) RespondToRequest(w http.ResponseWriter, r *http.Request) {
	var body respondBody
	if err := decode(r, &body); err != nil {
		writeBadRequest(w, "Malformed JSON body")
		return
	}
	if body.RequestID <= 0 {
		writeBadRequest(w, "Missing required fields")
		return
	}

	resp, err := lifecycle.ParseResponse(body.Response)
	if err != nil {
		writeBadRequest(w, "Invalid response type.")
		return
	}

	res, err := h.workflow.Respond(r.Context(), callerID(r), body.RequestID, resp)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "You have " + string(res.Response) + " the request.",
		"request_id": res.RequestID,
		"status":     res.Status,
	})
}

// MarkMatched handles POST /api/blood-request/mark-matched
func (h *Handler) MarkMatched(w http.ResponseWriter, r *http.Request) {
	res, err := h.workflow.MarkMatched(r.Context(), callerID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeTransition(w, "Request marked as matched", res)
}

// MarkComplete handles POST /api/blood-request/mark-complete
func (h *Handler) MarkComplete(w http.ResponseWriter, r *http.Request) {
	res, err := h.workflow.MarkComplete(r.Context(), callerID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeTransition(w, "Request marked as completed", res)
}

func writeTransition(w http.ResponseWriter, message string, res *donation.TransitionResult) {
	body := map[string]any{
		"message": message,
		"updated": res.Updated,
	}
	if res.Updated {
		body["request_id"] = res.RequestID
		body["status"] = res.Status
	}
	writeJSON(w, http.StatusOK, body)
}

// LatestStatus handles GET /api/blood-request/latest-status
func (h *Handler) LatestStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.workflow.LatestStatus(r.Context(), callerID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// ActiveCount handles GET /api/blood-request/active
func (h *Handler) ActiveCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.workflow.ActiveCount(r.Context(), callerID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// LastRequestCoords handles GET /api/blood-request/last-request-coords
func (h *Handler) LastRequestCoords(w http.ResponseWriter, r *http.Request) {
	coords, err := h.workflow.LastRequestCoords(r.Context(), callerID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coords)
}

// Timeline handles GET /api/blood-request/timeline
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	tl, err := h.workflow.Timeline(r.Context(), callerID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if tl == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// AllRequests handles GET /api/blood-request/all
func (h *Handler) AllRequests(w http.ResponseWriter, r *http.Request) {
	rows, err := h.directory.LatestRequestPerRecipient(r.Context())
	if err != nil {
		h.internalError(w, "list latest requests", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": rows})
}

// DonorRequests handles GET /api/blood-request/donor-requests
func (h *Handler) DonorRequests(w http.ResponseWriter, r *http.Request) {
	items, err := h.workflow.DonorInbox(r.Context(), callerID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": items})
}

// DonorMatch handles GET /api/matches/donor
func (h *Handler) DonorMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.workflow.DonorMatch(r.Context(), callerID(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if m == nil {
		writeJSON(w, http.StatusOK, map[string]any{"matched": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matched": true, "match": m})
}
