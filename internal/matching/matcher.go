// Package matching selects and ranks candidate donors for a blood request.
package matching

import (
	"sort"

	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/geo"
)

// Candidate is an eligible donor with distances in kilometres, rounded to 2 decimals.
type Candidate struct {
	ID                    int64    `json:"id"`
	Fullname              string   `json:"fullname"`
	Bloodtype             string   `json:"bloodtype"`
	Location              string   `json:"location"`
	Latitude              float64  `json:"latitude"`
	Longitude             float64  `json:"longitude"`
	Phone                 *string  `json:"phone,omitempty"`
	Availability          bool     `json:"availability"`
	DistanceFromRecipient float64  `json:"distance_from_recipient"`
	DistanceFromHospital  *float64 `json:"distance_from_hospital,omitempty"`
}

// Request is what the matcher needs to know about a blood request.
type Request struct {
	ID        int64
	BloodType string
	Location  string
	Center    geo.Point
}

// Eligible reports whether u may be offered req: a geocoded donor of the same
// blood type in the same constituency who has not rejected this request.
func Eligible(req Request, u *db.User, rejected map[int64]struct{}) bool {
	if u.Usertype != db.UserTypeDonor {
		return false
	}
	if u.Bloodtype != req.BloodType || u.Location != req.Location {
		return false
	}
	if _, ok := u.Point(); !ok {
		return false
	}
	_, excluded := rejected[u.ID]
	return !excluded
}

// Match filters donors for req and ranks them by distance from the request.
// When hospital is non-nil each candidate also carries its distance from it.
func Match(req Request, donors []*db.User, rejectedIDs []int64, hospital *geo.Point) []Candidate {
	rejected := make(map[int64]struct{}, len(rejectedIDs))
	for _, id := range rejectedIDs {
		rejected[id] = struct{}{}
	}

	out := make([]Candidate, 0, len(donors))
	for _, u := range donors {
		if !Eligible(req, u, rejected) {
			continue
		}
		p, _ := u.Point()
		c := Candidate{
			ID:                    u.ID,
			Fullname:              u.Fullname,
			Bloodtype:             u.Bloodtype,
			Location:              u.Location,
			Latitude:              p.Latitude,
			Longitude:             p.Longitude,
			Phone:                 u.Phone,
			Availability:          u.Availability,
			DistanceFromRecipient: geo.Round(geo.Haversine(req.Center, p), 2),
		}
		if hospital != nil {
			d := geo.Round(geo.Haversine(*hospital, p), 2)
			c.DistanceFromHospital = &d
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceFromRecipient < out[j].DistanceFromRecipient
	})
	return out
}
