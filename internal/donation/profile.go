package donation

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/apperr"
	"github.com/lalithlochan/bloodlink/internal/db"
)

type ProfileUpdate struct {
	Fullname     *string
	Phone        *string
	Availability *bool
	Location     *string
}

func (s *Service) Profile(ctx context.Context, callerID int64) (*db.User, error) {
	u, err := s.store.FindUserByID(ctx, callerID)
	if notFound(err) {
		return nil, apperr.NotFound("User not found.")
	}
	if err != nil {
		return nil, s.internal("find user", err, zap.Int64("user_id", callerID))
	}
	return u, nil
}

// UpdateProfile applies the set fields. A new location is re-geocoded from
// its constituency with an unrounded jitter.
func (s *Service) UpdateProfile(ctx context.Context, callerID int64, in ProfileUpdate) (*db.User, error) {
	upd := db.UserUpdate{
		Phone:        in.Phone,
		Availability: in.Availability,
	}

	if in.Fullname != nil {
		name := strings.TrimSpace(*in.Fullname)
		if name == "" {
			return nil, apperr.Validation("Full name cannot be empty.")
		}
		upd.Fullname = &name
	}

	if in.Location != nil {
		c, err := s.store.FindConstituency(ctx, strings.TrimSpace(*in.Location))
		if notFound(err) {
			return nil, apperr.Validation("Invalid constituency selected.")
		}
		if err != nil {
			return nil, s.internal("find constituency", err, zap.String("location", *in.Location))
		}
		p := s.jitter.Jitter(c.Centroid())
		upd.Location = &c.Name
		upd.Latitude = &p.Latitude
		upd.Longitude = &p.Longitude
	}

	if upd.Empty() {
		return nil, apperr.Validation("No fields to update.")
	}

	if err := s.store.UpdateUserFields(ctx, callerID, upd); err != nil {
		if notFound(err) {
			return nil, apperr.NotFound("User not found.")
		}
		return nil, s.internal("update user", err, zap.Int64("user_id", callerID))
	}
	return s.Profile(ctx, callerID)
}
