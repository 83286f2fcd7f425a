// Package geo provides geo-IP lookup and great-circle distance for risk scoring.
package geo

import "math"

// earthRadiusKM is the mean Earth radius used for haversine distance.
const earthRadiusKM = 6371.0

// Coordinates is a WGS84 latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Zero reports whether the coordinates are the unset zero value. The geo resolver
// returns zero coordinates for unknown locations; callers treat that as a neutral signal.
func (c Coordinates) Zero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// DistanceKM returns the haversine (great-circle) distance between a and b in kilometers.
func DistanceKM(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}
