package room

import "fmt"

// Location is a driver position in decimal degrees. Both coordinates are
// pointers so that an absent field is distinguishable from zero.
type Location struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// NewLocation is a convenience constructor for callers holding plain values.
func NewLocation(lat, lng float64) Location {
	return Location{Lat: &lat, Lng: &lng}
}

// Validate requires both coordinates and keeps them within [-90,90] and [-180,180].
func (l Location) Validate() error {
	if l.Lat == nil || l.Lng == nil {
		return fmt.Errorf("%w: lat and lng are required", ErrInvalidLocation)
	}
	if *l.Lat < -90 || *l.Lat > 90 {
		return fmt.Errorf("%w: lat %v out of range", ErrInvalidLocation, *l.Lat)
	}
	if *l.Lng < -180 || *l.Lng > 180 {
		return fmt.Errorf("%w: lng %v out of range", ErrInvalidLocation, *l.Lng)
	}
	return nil
}
