package trip

import (
	"math"
	"sort"
	"strings"

	"github.com/aerobless/thereabout/internal/backend"
	"github.com/aerobless/thereabout/internal/shared/geo"
)

// DaysSpent returns the rounded number of days between trip start and end.
// A same-day trip spans 0 days.
func DaysSpent(t backend.Trip) int {
	return int(math.Round(t.End.Sub(t.Start.Time).Hours() / 24))
}

// TotalDistanceKm sums the great-circle distance over consecutive entry
// pairs in the order given and returns whole kilometers. Fewer than two
// entries cover no distance.
func TotalDistanceKm(entries []backend.LocationEntry) int {
	if len(entries) < 2 {
		return 0
	}

	var totalMeters float64
	for i := 0; i < len(entries)-1; i++ {
		a := geo.Point{Lat: entries[i].Latitude, Lng: entries[i].Longitude}
		b := geo.Point{Lat: entries[i+1].Latitude, Lng: entries[i+1].Longitude}
		totalMeters += geo.DistanceMeters(a, b)
	}
	return int(math.Round(totalMeters / 1000))
}

// VisitedCountries returns the distinct ISO country codes estimated across
// the entries, sorted for stable rendering.
func VisitedCountries(entries []backend.LocationEntry) []string {
	seen := map[string]struct{}{}
	var codes []string
	for _, e := range entries {
		if e.EstimatedIsoCountryCode == "" {
			continue
		}
		if _, ok := seen[e.EstimatedIsoCountryCode]; ok {
			continue
		}
		seen[e.EstimatedIsoCountryCode] = struct{}{}
		codes = append(codes, e.EstimatedIsoCountryCode)
	}
	sort.Strings(codes)
	return codes
}

// CountryLabel renders the trip's attached visited countries as the joined
// code list shown in the trip panel.
func CountryLabel(t backend.Trip) string {
	codes := make([]string, 0, len(t.VisitedCountries))
	for _, c := range t.VisitedCountries {
		codes = append(codes, c.CountryIsoCode)
	}
	return strings.Join(codes, ", ")
}
