package backend

import (
	"fmt"
	"strings"
	"time"
)

// Date is a calendar date transmitted as yyyy-MM-dd.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a yyyy-MM-dd string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// AddDays returns a new date shifted by the given number of days. The
// receiver is never mutated; day navigation exchanges values.
func (d Date) AddDays(days int) Date {
	return Date{d.Time.AddDate(0, 0, days)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// LocationEntry is a single observed position. ID 0 denotes an entry that has
// not been persisted yet; the backend assigns a positive id on create.
type LocationEntry struct {
	ID                      int64     `json:"id"`
	Latitude                float64   `json:"latitude"`
	Longitude               float64   `json:"longitude"`
	Altitude                float64   `json:"altitude"`
	Timestamp               time.Time `json:"timestamp"`
	HorizontalAccuracy      float64   `json:"horizontalAccuracy,omitempty"`
	VerticalAccuracy        float64   `json:"verticalAccuracy,omitempty"`
	EstimatedIsoCountryCode string    `json:"estimatedIsoCountryCode,omitempty"`
	Note                    string    `json:"note,omitempty"`
	Source                  string    `json:"source,omitempty"`
}

// Persisted reports whether the entry carries a backend identity.
func (e LocationEntry) Persisted() bool {
	return e.ID > 0
}

// LocationList is a named, user-curated collection of location entries.
// The backend resolves members to their current entry state on every fetch.
type LocationList struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Entries []LocationEntry `json:"locationHistoryEntries"`
}

// listEntryRef is the body of the list membership endpoints.
type listEntryRef struct {
	LocationHistoryEntryID int64 `json:"locationHistoryEntryId"`
}

// VisitedCountry is a country attached to a trip, derived server-side from
// the trip's location entries.
type VisitedCountry struct {
	CountryIsoCode string `json:"countryIsoCode"`
	CountryName    string `json:"countryName"`
}

// Trip is a user-defined date range grouping location entries. The entries
// themselves are not stored on the trip; they are fetched by time window.
type Trip struct {
	ID               int64            `json:"id"`
	Start            Date             `json:"start"`
	End              Date             `json:"end"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	VisitedCountries []VisitedCountry `json:"visitedCountries,omitempty"`
}

// HealthSample is one sample of a named health metric. Qty is a pointer
// because source exports contain dated rows without a reading.
type HealthSample struct {
	Date  string   `json:"date"`
	Qty   *float64 `json:"qty,omitempty"`
	Units string   `json:"units,omitempty"`
}

// WorkoutSummary describes a single recorded workout.
type WorkoutSummary struct {
	Name            string     `json:"name"`
	Start           *time.Time `json:"start,omitempty"`
	DurationSeconds float64    `json:"durationSeconds,omitempty"`
	Distance        *float64   `json:"distance,omitempty"`
	DistanceUnits   string     `json:"distanceUnits,omitempty"`
	EnergyBurned    *float64   `json:"energyBurned,omitempty"`
	EnergyUnits     string     `json:"energyUnits,omitempty"`
	Location        string     `json:"location,omitempty"`
}

// HealthResponse is the health endpoint payload: metric samples keyed by
// metric name plus the workouts of the range.
type HealthResponse struct {
	Metrics  map[string][]HealthSample `json:"metrics"`
	Workouts []WorkoutSummary          `json:"workouts"`
}

// Message is a single imported chat message.
type Message struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type,omitempty"`
	Source    string    `json:"source,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Receiver  string    `json:"receiver,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MessagePage is one page of the paginated message listing.
type MessagePage struct {
	Content       []Message `json:"content"`
	Page          int       `json:"page"`
	Size          int       `json:"size"`
	TotalElements int64     `json:"totalElements"`
	TotalPages    int       `json:"totalPages"`
}

// MessageQuery holds the filters of the paginated message listing.
type MessageQuery struct {
	Page     int
	Size     int
	Sort     string
	Search   string
	DateFrom Date
	DateTo   Date
	Source   string
	Sender   string
	Receiver string
}

// Import status values reported by the import-status endpoint.
const (
	ImportIdle       = "IDLE"
	ImportPending    = "PENDING"
	ImportInProgress = "IN_PROGRESS"
	ImportCompleted  = "COMPLETED"
	ImportFailed     = "FAILED"
)

// FileImportStatus reports the state of the single in-flight file import.
type FileImportStatus struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

// Terminal reports whether no further polling should occur.
func (s FileImportStatus) Terminal() bool {
	return s.Status == ImportCompleted || s.Status == ImportFailed
}

// CountryStatistic is one row of the pre-computed country statistics.
type CountryStatistic struct {
	CountryIsoCode    string `json:"countryIsoCode"`
	CountryName       string `json:"countryName"`
	Continent         string `json:"continent,omitempty"`
	NumberOfDaysSpent int    `json:"numberOfDaysSpent"`
	FirstVisit        Date   `json:"firstVisit"`
	LastVisit         Date   `json:"lastVisit"`
}

// Statistics is the aggregated statistics payload.
type Statistics struct {
	VisitedCountries []CountryStatistic `json:"visitedCountries"`
}
