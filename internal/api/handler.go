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

	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/apperr"
	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/donation"
	"github.com/lalithlochan/bloodlink/internal/lifecycle"
)

// Workflow is the donation service as seen by the handlers.
type Workflow interface {
	CreateRequest(ctx context.Context, callerID int64, in donation.NewRequest) (*db.BloodRequest, error)
	MatchFromRequest(ctx context.Context, callerID int64, hospitalName string) (*donation.MatchResult, error)
	SendOffer(ctx context.Context, callerID int64, in donation.OfferInput) (*db.Offer, error)
	Respond(ctx context.Context, callerID, requestID int64, resp lifecycle.Response) (*donation.RespondResult, error)
	MarkMatched(ctx context.Context, callerID int64) (*donation.TransitionResult, error)
	MarkComplete(ctx context.Context, callerID int64) (*donation.TransitionResult, error)
	LatestStatus(ctx context.Context, callerID int64) (string, error)
	ActiveCount(ctx context.Context, callerID int64) (int, error)
	LastRequestCoords(ctx context.Context, callerID int64) (*donation.Coords, error)
	Timeline(ctx context.Context, callerID int64) (*donation.Timeline, error)
	DonorInbox(ctx context.Context, callerID int64) ([]*db.DonorInboxItem, error)
	DonorMatch(ctx context.Context, callerID int64) (*db.DonorMatch, error)
	Profile(ctx context.Context, callerID int64) (*db.User, error)
	UpdateProfile(ctx context.Context, callerID int64, in donation.ProfileUpdate) (*db.User, error)
}

type AppointmentService interface {
	Create(ctx context.Context, callerID int64, in donation.NewAppointment) (*db.Appointment, error)
	List(ctx context.Context, callerID int64) ([]*db.Appointment, error)
	ListAll(ctx context.Context) ([]*db.AppointmentView, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// AccountService registers users and exchanges credentials for tokens.
type AccountService interface {
	Signup(ctx context.Context, in donation.Signup) (*donation.Session, error)
	Login(ctx context.Context, email, password string) (*donation.Session, error)
}

// Directory serves the read-only lookups that bypass the workflow.
type Directory interface {
	ListConstituencies(ctx context.Context) ([]*db.Constituency, error)
	ListHospitals(ctx context.Context, constituency string) ([]*db.Hospital, error)
	LatestRequestPerRecipient(ctx context.Context) ([]*db.RequestWithRecipient, error)
	ListNotifications(ctx context.Context, userID int64, limit int) ([]*db.Notification, error)
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger       *zap.Logger
	workflow     Workflow
	appointments AppointmentService
	directory    Directory
	accounts     AccountService
}

func NewHandler(logger *zap.Logger, workflow Workflow, appointments AppointmentService, directory Directory, accounts AccountService) *Handler {
	return &Handler{
		logger:       logger,
		workflow:     workflow,
		appointments: appointments,
		directory:    directory,
		accounts:     accounts,
	}
}

var errEmptyBody = errors.New("request body is empty")

func decode(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return errEmptyBody
	}
	return err
}

var errNotANumber = errors.New("not a number")

// flexInt decodes a JSON number or a numeric string; form clients post
// numeric inputs as strings. An empty string decodes to zero.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errNotANumber
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return errNotANumber
	}
	*f = flexInt(n)
	return nil
}

// decodeFailure is the detail written for a body that would not decode.
func decodeFailure(err error) string {
	if errors.Is(err, errNotANumber) {
		return "units must be a number."
	}
	return "Malformed JSON body"
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

var kindStatus = map[apperr.Kind]struct {
	status int
	title  string
}{
	apperr.KindValidation:   {http.StatusBadRequest, "Bad Request"},
	apperr.KindNotFound:     {http.StatusNotFound, "Not Found"},
	apperr.KindConflict:     {http.StatusConflict, "Conflict"},
	apperr.KindUnauthorized: {http.StatusUnauthorized, "Unauthorized"},
	apperr.KindInternal:     {http.StatusInternalServerError, "Internal Server Error"},
}

// writeAppError renders err by its kind. Causes of internal errors are logged
// by the workflow and never written to the client.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	m := kindStatus[kind]
	detail := apperr.MessageOf(err)
	if kind == apperr.KindInternal {
		detail = "Internal server error"
	}
	writeError(w, m.status, string(kind), m.title, detail)
}

func writeBadRequest(w http.ResponseWriter, detail string) {
	writeAppError(w, apperr.Validation(detail))
}
