package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Immutable geographic coordinates (longitude, latitude).
type Coordinates struct {
	Lon float64
	Lat float64
}

// Return coordinates as [lon, lat] for external API compatibility.
func (c Coordinates) CoordsToList() []float64 { return []float64{c.Lon, c.Lat} }

// ParseCoordinates reads a "lon,lat" locator.
// ok is false when s is not a coordinate pair (e.g. a free-form address).
func ParseCoordinates(s string) (c Coordinates, ok bool, err error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Coordinates{}, false, nil
	}

	lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLon != nil || errLat != nil {
		return Coordinates{}, false, nil
	}

	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return Coordinates{}, true, fmt.Errorf("parse coordinates %q: out of range", s)
	}

	return Coordinates{Lon: lon, Lat: lat}, true, nil
}
