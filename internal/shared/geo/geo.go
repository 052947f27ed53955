package geo

import "github.com/golang/geo/s2"

// EarthRadiusMeters is the mean earth radius used for great-circle math.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// DistanceMeters returns the great-circle distance between two points in meters.
func DistanceMeters(a, b Point) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// HaversineKm returns the great-circle distance between two coordinates in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return DistanceMeters(Point{Lat: lat1, Lng: lng1}, Point{Lat: lat2, Lng: lng2}) / 1000
}

// NearestOnPath returns the index of the path point closest to click,
// or -1 for an empty path. Ties go to the lowest index.
func NearestOnPath(click Point, path []Point) int {
	nearest := -1
	var nearestDist float64
	for i, p := range path {
		d := DistanceMeters(click, p)
		if nearest == -1 || d < nearestDist {
			nearest = i
			nearestDist = d
		}
	}
	return nearest
}

// Geocoder resolves a coordinate to an ISO country code. The real lookup
// lives server-side; clients inject a table-backed stand-in for tests.
type Geocoder interface {
	CountryISO(p Point) (string, bool)
}
