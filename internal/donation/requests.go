package donation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/apperr"
	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/geo"
	"github.com/lalithlochan/bloodlink/internal/lifecycle"
	"github.com/lalithlochan/bloodlink/internal/matching"
)

type NewRequest struct {
	BloodType    string
	UrgencyLevel string
	Units        int
	Location     string
	ContactInfo  string
	DateNeeded   time.Time
}

func (n NewRequest) complete() bool {
	return strings.TrimSpace(n.BloodType) != "" &&
		strings.TrimSpace(n.UrgencyLevel) != "" &&
		n.Units > 0 &&
		strings.TrimSpace(n.Location) != "" &&
		strings.TrimSpace(n.ContactInfo) != "" &&
		!n.DateNeeded.IsZero()
}

// CreateRequest stores an active request geocoded to a jittered point around
// the constituency centroid.
func (s *Service) CreateRequest(ctx context.Context, callerID int64, in NewRequest) (*db.BloodRequest, error) {
	if !in.complete() {
		return nil, apperr.Validation("All fields are required.")
	}
	if !db.ValidBloodType(in.BloodType) {
		return nil, apperr.Validation("Invalid blood type.")
	}

	c, err := s.store.FindConstituency(ctx, in.Location)
	if notFound(err) {
		return nil, apperr.Validation("Invalid constituency selected.")
	}
	if err != nil {
		return nil, s.internal("find constituency", err, zap.String("location", in.Location))
	}

	p := s.jitter.JitterRounded(c.Centroid())
	req := &db.BloodRequest{
		RecipientID:  callerID,
		BloodType:    in.BloodType,
		UrgencyLevel: in.UrgencyLevel,
		Units:        in.Units,
		Location:     c.Name,
		ContactInfo:  in.ContactInfo,
		DateNeeded:   in.DateNeeded,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, s.internal("create request", err, zap.Int64("recipient_id", callerID))
	}
	return req, nil
}

// Center describes the request candidates were ranked against.
type Center struct {
	RequestID int64   `json:"request_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Location  string  `json:"location"`
	Fullname  string  `json:"fullname"`
	BloodType string  `json:"blood_type"`
}

type MatchResult struct {
	Center Center               `json:"center"`
	Donors []matching.Candidate `json:"donors"`
}

// MatchFromRequest ranks eligible donors for the caller's latest open request.
// A non-empty hospitalName adds each donor's distance from that hospital.
func (s *Service) MatchFromRequest(ctx context.Context, callerID int64, hospitalName string) (*MatchResult, error) {
	req, err := s.store.LatestRequestWithRecipient(ctx, callerID, openStatuses...)
	if notFound(err) {
		return nil, apperr.NotFound("No active blood request found")
	}
	if err != nil {
		return nil, s.internal("latest request", err, zap.Int64("recipient_id", callerID))
	}

	var hospital *geo.Point
	if hospitalName != "" {
		h, err := s.store.FindHospital(ctx, req.Location, hospitalName)
		if notFound(err) {
			return nil, apperr.Validation("Unknown hospital for this constituency.")
		}
		if err != nil {
			return nil, s.internal("find hospital", err, zap.String("hospital", hospitalName))
		}
		p := h.Point()
		hospital = &p
	}

	donors, err := s.store.FindDonors(ctx, req.BloodType, req.Location)
	if err != nil {
		return nil, s.internal("find donors", err, zap.Int64("request_id", req.ID))
	}
	rejected, err := s.store.RejectedDonorIDs(ctx, req.ID)
	if err != nil {
		return nil, s.internal("rejected donors", err, zap.Int64("request_id", req.ID))
	}

	mreq := matching.Request{
		ID:        req.ID,
		BloodType: req.BloodType,
		Location:  req.Location,
		Center:    req.Point(),
	}
	return &MatchResult{
		Center: Center{
			RequestID: req.ID,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Location:  req.Location,
			Fullname:  req.RecipientName,
			BloodType: req.BloodType,
		},
		Donors: matching.Match(mreq, donors, rejected, hospital),
	}, nil
}

// LatestStatus returns the status of the caller's newest request, or "none".
func (s *Service) LatestStatus(ctx context.Context, callerID int64) (string, error) {
	req, err := s.store.LatestRequest(ctx, callerID)
	if notFound(err) {
		return "none", nil
	}
	if err != nil {
		return "", s.internal("latest status", err, zap.Int64("recipient_id", callerID))
	}
	return string(req.Status), nil
}

func (s *Service) ActiveCount(ctx context.Context, callerID int64) (int, error) {
	n, err := s.store.CountRequests(ctx, callerID, lifecycle.StatusActive)
	if err != nil {
		return 0, s.internal("count active requests", err, zap.Int64("recipient_id", callerID))
	}
	return n, nil
}

type Coords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Location  string  `json:"location"`
}

func (s *Service) LastRequestCoords(ctx context.Context, callerID int64) (*Coords, error) {
	req, err := s.store.LatestRequest(ctx, callerID, lifecycle.StatusActive)
	if notFound(err) {
		return nil, apperr.NotFound("No active request found")
	}
	if err != nil {
		return nil, s.internal("last request coords", err, zap.Int64("recipient_id", callerID))
	}
	return &Coords{Latitude: req.Latitude, Longitude: req.Longitude, Location: req.Location}, nil
}

type Timeline struct {
	RequestedAt time.Time        `json:"requested_at"`
	MatchedAt   *time.Time       `json:"matched_at"`
	CompletedAt *time.Time       `json:"completed_at"`
	Status      lifecycle.Status `json:"status"`
}

// Timeline returns nil when the caller has never made a request.
func (s *Service) Timeline(ctx context.Context, callerID int64) (*Timeline, error) {
	req, err := s.store.LatestRequest(ctx, callerID)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, s.internal("timeline", err, zap.Int64("recipient_id", callerID))
	}
	return &Timeline{
		RequestedAt: req.RequestedAt,
		MatchedAt:   req.MatchedAt,
		CompletedAt: req.CompletedAt,
		Status:      req.Status,
	}, nil
}

func (s *Service) DonorInbox(ctx context.Context, callerID int64) ([]*db.DonorInboxItem, error) {
	items, err := s.store.DonorInbox(ctx, callerID)
	if err != nil {
		return nil, s.internal("donor inbox", err, zap.Int64("donor_id", callerID))
	}
	return items, nil
}

// DonorMatch returns the caller's matched request, or nil when there is none.
func (s *Service) DonorMatch(ctx context.Context, callerID int64) (*db.DonorMatch, error) {
	m, err := s.store.DonorMatch(ctx, callerID)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, s.internal("donor match", err, zap.Int64("donor_id", callerID))
	}
	return m, nil
}
