package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/auth"
	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/donation"
	"github.com/lalithlochan/bloodlink/internal/lifecycle"
)

// mockWorkflow records the caller of each call. Unset funcs return zero values.
type mockWorkflow struct {
	lastCaller int64

	createRequest func(donation.NewRequest) (*db.BloodRequest, error)
	match         func(hospital string) (*donation.MatchResult, error)
	sendOffer     func(donation.OfferInput) (*db.Offer, error)
	respond       func(requestID int64, resp lifecycle.Response) (*donation.RespondResult, error)
	markComplete  func() (*donation.TransitionResult, error)
	latestStatus  func() (string, error)
	timeline      func() (*donation.Timeline, error)
	donorMatch    func() (*db.DonorMatch, error)
	updateProfile func(donation.ProfileUpdate) (*db.User, error)
}

func (m *mockWorkflow) CreateRequest(_ context.Context, callerID int64, in donation.NewRequest) (*db.BloodRequest, error) {
	m.lastCaller = callerID
	if m.createRequest == nil {
		return &db.BloodRequest{ID: 1}, nil
	}
	return m.createRequest(in)
}

func (m *mockWorkflow) MatchFromRequest(_ context.Context, callerID int64, hospital string) (*donation.MatchResult, error) {
	m.lastCaller = callerID
	if m.match == nil {
		return &donation.MatchResult{}, nil
	}
	return m.match(hospital)
}

func (m *mockWorkflow) SendOffer(_ context.Context, callerID int64, in donation.OfferInput) (*db.Offer, error) {
	m.lastCaller = callerID
	if m.sendOffer == nil {
		return &db.Offer{ID: 1}, nil
	}
	return m.sendOffer(in)
}

func (m *mockWorkflow) Respond(_ context.Context, callerID, requestID int64, resp lifecycle.Response) (*donation.RespondResult, error) {
	m.lastCaller = callerID
	if m.respond == nil {
		return &donation.RespondResult{RequestID: requestID, Response: resp}, nil
	}
	return m.respond(requestID, resp)
}

func (m *mockWorkflow) MarkMatched(_ context.Context, callerID int64) (*donation.TransitionResult, error) {
	m.lastCaller = callerID
	return &donation.TransitionResult{}, nil
}

func (m *mockWorkflow) MarkComplete(_ context.Context, callerID int64) (*donation.TransitionResult, error) {
	m.lastCaller = callerID
	if m.markComplete == nil {
		return &donation.TransitionResult{}, nil
	}
	return m.markComplete()
}

func (m *mockWorkflow) LatestStatus(_ context.Context, callerID int64) (string, error) {
	m.lastCaller = callerID
	if m.latestStatus == nil {
		return "none", nil
	}
	return m.latestStatus()
}

func (m *mockWorkflow) ActiveCount(_ context.Context, callerID int64) (int, error) {
	m.lastCaller = callerID
	return 0, nil
}

func (m *mockWorkflow) LastRequestCoords(_ context.Context, callerID int64) (*donation.Coords, error) {
	m.lastCaller = callerID
	return &donation.Coords{}, nil
}

func (m *mockWorkflow) Timeline(_ context.Context, callerID int64) (*donation.Timeline, error) {
	m.lastCaller = callerID
	if m.timeline == nil {
		return nil, nil
	}
	return m.timeline()
}

func (m *mockWorkflow) DonorInbox(_ context.Context, callerID int64) ([]*db.DonorInboxItem, error) {
	m.lastCaller = callerID
	return []*db.DonorInboxItem{}, nil
}

func (m *mockWorkflow) DonorMatch(_ context.Context, callerID int64) (*db.DonorMatch, error) {
	m.lastCaller = callerID
	if m.donorMatch == nil {
		return nil, nil
	}
	return m.donorMatch()
}

func (m *mockWorkflow) Profile(_ context.Context, callerID int64) (*db.User, error) {
	m.lastCaller = callerID
	return &db.User{ID: callerID}, nil
}

func (m *mockWorkflow) UpdateProfile(_ context.Context, callerID int64, in donation.ProfileUpdate) (*db.User, error) {
	m.lastCaller = callerID
	if m.updateProfile == nil {
		return &db.User{ID: callerID}, nil
	}
	return m.updateProfile(in)
}

type mockAppointments struct {
	created   []donation.NewAppointment
	updateErr error
}

func (m *mockAppointments) Create(_ context.Context, callerID int64, in donation.NewAppointment) (*db.Appointment, error) {
	m.created = append(m.created, in)
	return &db.Appointment{ID: int64(len(m.created)), UserID: callerID, Date: in.Date, Location: in.Location, Units: in.Units}, nil
}

func (m *mockAppointments) List(context.Context, int64) ([]*db.Appointment, error) {
	return []*db.Appointment{}, nil
}

func (m *mockAppointments) ListAll(context.Context) ([]*db.AppointmentView, error) {
	return []*db.AppointmentView{}, nil
}

func (m *mockAppointments) UpdateStatus(context.Context, int64, string) error {
	return m.updateErr
}

type mockDirectory struct {
	notifications []*db.Notification
	err           error
}

func (m *mockDirectory) ListConstituencies(context.Context) ([]*db.Constituency, error) {
	return []*db.Constituency{{ID: 1, Name: "Westlands"}}, m.err
}

func (m *mockDirectory) ListHospitals(_ context.Context, constituency string) ([]*db.Hospital, error) {
	return []*db.Hospital{{ID: 1, Name: "Aga Khan Hospital", Constituency: constituency}}, m.err
}

func (m *mockDirectory) LatestRequestPerRecipient(context.Context) ([]*db.RequestWithRecipient, error) {
	return []*db.RequestWithRecipient{}, m.err
}

func (m *mockDirectory) ListNotifications(_ context.Context, userID int64, _ int) ([]*db.Notification, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.notifications, nil
}

type mockAccounts struct {
	signup func(donation.Signup) (*donation.Session, error)
	login  func(email, password string) (*donation.Session, error)
}

func (m *mockAccounts) Signup(_ context.Context, in donation.Signup) (*donation.Session, error) {
	if m.signup == nil {
		return &donation.Session{User: &db.User{ID: 1}, Token: "token"}, nil
	}
	return m.signup(in)
}

func (m *mockAccounts) Login(_ context.Context, email, password string) (*donation.Session, error) {
	if m.login == nil {
		return &donation.Session{User: &db.User{ID: 1}, Token: "token"}, nil
	}
	return m.login(email, password)
}

const testSecret = "test-secret"

type testServer struct {
	workflow     *mockWorkflow
	appointments *mockAppointments
	directory    *mockDirectory
	accounts     *mockAccounts
	issuer       *auth.Issuer
	router       http.Handler
}

func newTestServer(t *testing.T, opts ...func(*RouterConfig)) *testServer {
	t.Helper()
	ts := &testServer{
		workflow:     &mockWorkflow{},
		appointments: &mockAppointments{},
		directory:    &mockDirectory{},
		accounts:     &mockAccounts{},
		issuer:       auth.NewIssuer(testSecret, time.Hour),
	}

	cfg := RouterConfig{
		Handler:  NewHandler(zap.NewNop(), ts.workflow, ts.appointments, ts.directory, ts.accounts),
		Verifier: ts.issuer,
		Logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	ts.router = NewRouter(cfg)
	return ts
}

// do sends a request as userID; userID 0 sends no token.
func (ts *testServer) do(t *testing.T, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, err := ts.issuer.Issue(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
	return m
}
