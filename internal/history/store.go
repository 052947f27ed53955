package history

import (
	"context"
	"fmt"
	"time"

	"github.com/aerobless/thereabout/internal/backend"
	"github.com/aerobless/thereabout/internal/shared/geo"
	"github.com/aerobless/thereabout/internal/shared/notify"
)

// API represents the backend location operations used by the store.
// *backend.Client satisfies this interface; tests substitute a fake.
type API interface {
	Locations(ctx context.Context, from, to backend.Date) ([]backend.LocationEntry, error)
	SparseLocations(ctx context.Context, from, to backend.Date) ([]backend.LocationEntry, error)
	AddLocation(ctx context.Context, entry backend.LocationEntry) (backend.LocationEntry, error)
	UpdateLocation(ctx context.Context, entry backend.LocationEntry) (backend.LocationEntry, error)
	DeleteLocations(ctx context.Context, ids []int64) error
}

// Default viewport before any data is loaded.
var defaultCenter = geo.Point{Lat: 47.3919661, Lng: 8.3}

const (
	defaultZoom   = 4
	dayLoadedZoom = 12

	locateSelectionZoom = 16
	locateDayZoom       = 11
)

// Store is the single source of truth for the location entries and selection
// currently on screen, and the only component that calls mutating backend
// operations. Every mutation reloads the affected view after the backend
// acknowledges it, so aggregates recompute against ground truth rather than
// optimistic local edits.
//
// The store is driven from a single goroutine (the UI event loop); it holds
// no locks.
type Store struct {
	api    API
	notify notify.Func

	date    backend.Date
	entries []backend.LocationEntry

	selected    []backend.LocationEntry
	highlighted *backend.LocationEntry

	center geo.Point
	zoom   int

	trip        *backend.Trip
	tripEntries []backend.LocationEntry
}

// NewStore creates a store. A nil notifier discards notifications.
func NewStore(api API, notifier notify.Func) *Store {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Store{
		api:    api,
		notify: notifier,
		center: defaultCenter,
		zoom:   defaultZoom,
	}
}

// Accessors for the rendered view state.

func (s *Store) Date() backend.Date { return s.date }

func (s *Store) Entries() []backend.LocationEntry { return s.entries }

func (s *Store) Selected() []backend.LocationEntry { return s.selected }

func (s *Store) Highlighted() *backend.LocationEntry { return s.highlighted }

func (s *Store) Center() geo.Point { return s.center }

func (s *Store) Zoom() int { return s.zoom }

func (s *Store) Trip() *backend.Trip { return s.trip }

func (s *Store) TripEntries() []backend.LocationEntry { return s.tripEntries }

// LoadDate loads the day view for the given date. A zero date is a no-op:
// it is never sent to the backend as an open-ended query.
func (s *Store) LoadDate(ctx context.Context, date backend.Date) error {
	if date.IsZero() {
		return nil
	}
	s.date = date
	return s.reloadDay(ctx, 0)
}

// LoadRange loads the downsampled multi-day view used for heatmap
// rendering. A missing bound is a no-op. Range data replaces the day view's
// entries and clears the selection; day navigation resumes once a single
// date is loaded again.
func (s *Store) LoadRange(ctx context.Context, from, to backend.Date) error {
	if from.IsZero() || to.IsZero() {
		return nil
	}
	entries, err := s.api.SparseLocations(ctx, from, to)
	if err != nil {
		s.notify(notify.Notification{
			Severity: notify.SeverityError,
			Summary:  "Loading failed",
			Detail:   err.Error(),
		})
		return err
	}
	s.date = backend.Date{}
	s.entries = entries
	s.selected = nil
	return nil
}

// NextDay navigates one day forward. Navigation exchanges immutable date
// values; the previous date is never mutated in place.
func (s *Store) NextDay(ctx context.Context) error {
	if s.date.IsZero() {
		return nil
	}
	return s.LoadDate(ctx, s.date.AddDays(1))
}

// PreviousDay navigates one day back.
func (s *Store) PreviousDay(ctx context.Context) error {
	if s.date.IsZero() {
		return nil
	}
	return s.LoadDate(ctx, s.date.AddDays(-1))
}

// Today jumps to the current calendar date.
func (s *Store) Today(ctx context.Context) error {
	return s.LoadDate(ctx, backend.DateOf(time.Now()))
}

// reloadDay refetches the active day. Selection is cleared unless a
// preselect id is given, in which case the selection becomes exactly the
// entries matching that id (0 or 1 expected). Stale selections referencing
// entries outside the new set are meaningless either way.
func (s *Store) reloadDay(ctx context.Context, preselectID int64) error {
	entries, err := s.api.Locations(ctx, s.date, s.date)
	if err != nil {
		s.notify(notify.Notification{
			Severity: notify.SeverityError,
			Summary:  "Loading failed",
			Detail:   err.Error(),
		})
		return err
	}

	s.entries = entries
	s.selected = nil
	if preselectID > 0 {
		for _, e := range entries {
			if e.ID == preselectID {
				s.selected = append(s.selected, e)
			}
		}
	}

	if len(entries) > 0 {
		s.center = geo.Point{Lat: entries[0].Latitude, Lng: entries[0].Longitude}
		s.zoom = dayLoadedZoom
	}
	return nil
}

// OpenTrip loads the trip view: all entries whose timestamp falls within the
// trip's date bounds. The day view is left untouched.
func (s *Store) OpenTrip(ctx context.Context, t backend.Trip) error {
	if t.Start.IsZero() || t.End.IsZero() {
		return nil
	}
	s.trip = &t
	return s.reloadTrip(ctx)
}

// CloseTrip discards the trip view.
func (s *Store) CloseTrip() {
	s.trip = nil
	s.tripEntries = nil
}

func (s *Store) reloadTrip(ctx context.Context) error {
	if s.trip == nil {
		return nil
	}
	entries, err := s.api.Locations(ctx, s.trip.Start, s.trip.End)
	if err != nil {
		s.notify(notify.Notification{
			Severity: notify.SeverityError,
			Summary:  "Loading failed",
			Detail:   err.Error(),
		})
		return err
	}
	s.tripEntries = entries
	return nil
}

// Create adds a new location entry. With exactly one entry selected, the new
// entry duplicates its coordinates and timestamp (typically retimed
// afterwards). With nothing selected it is placed at the map center, at
// local noon of the active date. With 2+ entries selected creation is
// undefined and skipped.
func (s *Store) Create(ctx context.Context) error {
	switch len(s.selected) {
	case 0:
		if s.date.IsZero() {
			return nil
		}
		y, m, d := s.date.Date()
		noon := time.Date(y, m, d, 12, 0, 0, 0, time.Local)
		return s.createAt(ctx, s.center.Lat, s.center.Lng, noon)
	case 1:
		origin := s.selected[0]
		return s.createAt(ctx, origin.Latitude, origin.Longitude, origin.Timestamp)
	default:
		return nil
	}
}

func (s *Store) createAt(ctx context.Context, lat, lng float64, ts time.Time) error {
	created, err := s.api.AddLocation(ctx, backend.LocationEntry{
		Latitude:  lat,
		Longitude: lng,
		Timestamp: ts,
	})
	if err != nil {
		s.notify(notify.Notification{
			Severity: notify.SeverityError,
			Summary:  "Location creation failed",
			Detail:   err.Error(),
		})
		return err
	}

	s.notify(notify.Notification{
		Severity: notify.SeveritySuccess,
		Summary:  "Location created",
		Detail:   "The location was successfully created.",
	})
	if err := s.reloadDay(ctx, created.ID); err != nil {
		return err
	}
	return s.reloadTrip(ctx)
}

// Update persists an in-place edit of one entry. The reload afterwards makes
// the local copy converge on the server's authoritative state.
func (s *Store) Update(ctx context.Context, entry backend.LocationEntry) error {
	if !entry.Persisted() {
		return nil
	}
	if _, err := s.api.UpdateLocation(ctx, entry); err != nil {
		s.notify(notify.Notification{
			Severity: notify.SeverityError,
			Summary:  "Location update failed",
			Detail:   err.Error(),
		})
		return err
	}

	s.notify(notify.Notification{
		Severity: notify.SeveritySuccess,
		Summary:  "Location updated",
		Detail:   "The location was successfully updated.",
	})
	if err := s.reloadDay(ctx, entry.ID); err != nil {
		return err
	}
	return s.reloadTrip(ctx)
}

// MarkerDragged moves a rendered entry to new coordinates and persists the
// move. Unknown ids are ignored.
func (s *Store) MarkerDragged(ctx context.Context, id int64, lat, lng float64) error {
	for _, e := range s.entries {
		if e.ID == id {
			e.Latitude = lat
			e.Longitude = lng
			return s.Update(ctx, e)
		}
	}
	return nil
}

// DeleteSelected deletes all currently selected entries in one batch
// request. An empty selection is a no-op.
func (s *Store) DeleteSelected(ctx context.Context) error {
	if len(s.selected) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(s.selected))
	for _, e := range s.selected {
		ids = append(ids, e.ID)
	}

	if err := s.api.DeleteLocations(ctx, ids); err != nil {
		s.notify(notify.Notification{
			Severity: notify.SeverityError,
			Summary:  "Location deletion failed",
			Detail:   err.Error(),
		})
		return err
	}

	s.notify(notify.Notification{
		Severity: notify.SeveritySuccess,
		Summary:  "Location deleted",
		Detail:   fmt.Sprintf("%d location entries were successfully deleted.", len(ids)),
	})
	if err := s.reloadDay(ctx, 0); err != nil {
		return err
	}
	return s.reloadTrip(ctx)
}

// SetSelected replaces the selection, e.g. from a table row selection.
func (s *Store) SetSelected(entries []backend.LocationEntry) {
	s.selected = entries
}

// SetHighlighted sets the hover hint. It is independent of the selection and
// carries no backend effect; nil clears it.
func (s *Store) SetHighlighted(entry *backend.LocationEntry) {
	s.highlighted = entry
}

// PickNearest translates a polyline click into the closest visited moment.
// If the nearest entry is already the sole selection, the click deselects
// it; otherwise it becomes the single selected entry.
func (s *Store) PickNearest(click geo.Point) *backend.LocationEntry {
	path := make([]geo.Point, len(s.entries))
	for i, e := range s.entries {
		path[i] = geo.Point{Lat: e.Latitude, Lng: e.Longitude}
	}

	idx := geo.NearestOnPath(click, path)
	if idx < 0 {
		return nil
	}
	nearest := s.entries[idx]

	if len(s.selected) == 1 && s.selected[0].ID == nearest.ID {
		s.selected = nil
		return nil
	}
	s.selected = []backend.LocationEntry{nearest}
	return &nearest
}

// Locate re-centers the viewport: on the first selected entry (close zoom)
// or on the start of the day path (wide zoom). Without data it does nothing.
func (s *Store) Locate() {
	if len(s.selected) > 0 {
		s.center = geo.Point{Lat: s.selected[0].Latitude, Lng: s.selected[0].Longitude}
		s.zoom = locateSelectionZoom
		return
	}
	if len(s.entries) == 0 {
		return
	}
	s.center = geo.Point{Lat: s.entries[0].Latitude, Lng: s.entries[0].Longitude}
	s.zoom = locateDayZoom
}
