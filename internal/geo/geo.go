// Package geo holds the distance and location anonymization helpers used for matching.
package geo

import (
	"math"
	"math/rand"
	"sync"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// JitterDegrees bounds the random offset applied on each axis.
const JitterDegrees = 0.02

type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b Point) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLng := toRadians(b.Longitude - a.Longitude)
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Jitterer offsets centroids by a uniform amount in [-JitterDegrees, +JitterDegrees) per axis.
// It is safe for concurrent use.
type Jitterer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewJitterer uses src for randomness; a nil src seeds from the global source.
func NewJitterer(src rand.Source) *Jitterer {
	if src == nil {
		src = rand.NewSource(rand.Int63())
	}
	return &Jitterer{rnd: rand.New(src)}
}

// Jitter returns a point near centroid. The output is not reversible.
func (j *Jitterer) Jitter(centroid Point) Point {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Point{
		Latitude:  centroid.Latitude + (j.rnd.Float64()-0.5)*2*JitterDegrees,
		Longitude: centroid.Longitude + (j.rnd.Float64()-0.5)*2*JitterDegrees,
	}
}

// JitterRounded is Jitter with both axes rounded to 7 decimal places.
func (j *Jitterer) JitterRounded(centroid Point) Point {
	p := j.Jitter(centroid)
	return Point{Latitude: Round(p.Latitude, 7), Longitude: Round(p.Longitude, 7)}
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
