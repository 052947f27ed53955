package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aerobless/thereabout/internal/backend"
	"github.com/aerobless/thereabout/internal/shared/geo"
	"github.com/aerobless/thereabout/internal/shared/notify"
)

// fakeAPI is an in-memory stand-in for the backend location operations.
type fakeAPI struct {
	entries map[int64]backend.LocationEntry
	nextID  int64

	locationCalls int
	sparseCalls   int
	addCalls      int
	updateCalls   int
	deleteCalls   int

	failNext error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{entries: map[int64]backend.LocationEntry{}, nextID: 1}
}

func (f *fakeAPI) add(lat, lng float64, ts time.Time, country string) backend.LocationEntry {
	e := backend.LocationEntry{
		ID:                      f.nextID,
		Latitude:                lat,
		Longitude:               lng,
		Timestamp:               ts,
		EstimatedIsoCountryCode: country,
	}
	f.entries[e.ID] = e
	f.nextID++
	return e
}

func (f *fakeAPI) takeErr() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeAPI) Locations(_ context.Context, from, to backend.Date) ([]backend.LocationEntry, error) {
	f.locationCalls++
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	var result []backend.LocationEntry
	for _, e := range f.entries {
		day := backend.DateOf(e.Timestamp.UTC())
		if day.Before(from.Time) || day.After(to.Time) {
			continue
		}
		result = append(result, e)
	}
	// Chronological, as the backend returns them.
	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if result[j].Timestamp.Before(result[i].Timestamp) {
				result[i], result[j] = result[j], result[i]
			}
		}
	}
	return result, nil
}

func (f *fakeAPI) SparseLocations(ctx context.Context, from, to backend.Date) ([]backend.LocationEntry, error) {
	f.sparseCalls++
	return f.Locations(ctx, from, to)
}

func (f *fakeAPI) AddLocation(_ context.Context, entry backend.LocationEntry) (backend.LocationEntry, error) {
	f.addCalls++
	if err := f.takeErr(); err != nil {
		return backend.LocationEntry{}, err
	}
	entry.ID = f.nextID
	f.nextID++
	f.entries[entry.ID] = entry
	return entry, nil
}

func (f *fakeAPI) UpdateLocation(_ context.Context, entry backend.LocationEntry) (backend.LocationEntry, error) {
	f.updateCalls++
	if err := f.takeErr(); err != nil {
		return backend.LocationEntry{}, err
	}
	if _, ok := f.entries[entry.ID]; !ok {
		return backend.LocationEntry{}, errors.New("entry not found")
	}
	f.entries[entry.ID] = entry
	return entry, nil
}

func (f *fakeAPI) DeleteLocations(_ context.Context, ids []int64) error {
	f.deleteCalls++
	if err := f.takeErr(); err != nil {
		return err
	}
	for _, id := range ids {
		delete(f.entries, id)
	}
	return nil
}

type recorder struct {
	notifications []notify.Notification
}

func (r *recorder) record(n notify.Notification) {
	r.notifications = append(r.notifications, n)
}

var june1 = backend.NewDate(2024, 6, 1)

func june1At(hour int) time.Time {
	return time.Date(2024, 6, 1, hour, 0, 0, 0, time.UTC)
}

func TestLoadDateReplacesEntriesAndClearsSelection(t *testing.T) {
	api := newFakeAPI()
	first := api.add(47.0, 8.0, june1At(9), "CH")
	api.add(47.1, 8.1, june1At(10), "CH")

	store := NewStore(api, nil)
	store.SetSelected([]backend.LocationEntry{{ID: 99}})

	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}
	if len(store.Entries()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(store.Entries()))
	}
	if len(store.Selected()) != 0 {
		t.Fatalf("expected selection cleared, got %v", store.Selected())
	}
	if store.Center() != (geo.Point{Lat: first.Latitude, Lng: first.Longitude}) {
		t.Fatalf("expected center on first entry, got %v", store.Center())
	}
	if store.Zoom() != 12 {
		t.Fatalf("expected zoom 12, got %d", store.Zoom())
	}
}

func TestLoadDateZeroDateIsNoOp(t *testing.T) {
	api := newFakeAPI()
	store := NewStore(api, nil)
	store.SetSelected([]backend.LocationEntry{{ID: 1}})

	if err := store.LoadDate(context.Background(), backend.Date{}); err != nil {
		t.Fatalf("load zero date: %v", err)
	}
	if api.locationCalls != 0 {
		t.Fatalf("expected no backend call, got %d", api.locationCalls)
	}
	if len(store.Selected()) != 1 {
		t.Fatalf("expected prior state untouched")
	}
}

func TestLoadRangeUsesSparseEndpoint(t *testing.T) {
	api := newFakeAPI()
	api.add(47.0, 8.0, june1At(9), "CH")
	api.add(47.1, 8.1, time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC), "CH")

	store := NewStore(api, nil)
	store.SetSelected([]backend.LocationEntry{{ID: 1}})

	from := backend.NewDate(2024, 6, 1)
	to := backend.NewDate(2024, 6, 30)
	if err := store.LoadRange(context.Background(), from, to); err != nil {
		t.Fatalf("load range: %v", err)
	}
	if api.sparseCalls != 1 {
		t.Fatalf("expected sparse endpoint, got %d calls", api.sparseCalls)
	}
	if len(store.Entries()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(store.Entries()))
	}
	if len(store.Selected()) != 0 {
		t.Fatalf("expected selection cleared")
	}
	if !store.Date().IsZero() {
		t.Fatalf("expected active date cleared in range view")
	}
}

func TestLoadRangeMissingBoundIsNoOp(t *testing.T) {
	api := newFakeAPI()
	store := NewStore(api, nil)

	if err := store.LoadRange(context.Background(), june1, backend.Date{}); err != nil {
		t.Fatalf("load range: %v", err)
	}
	if api.sparseCalls != 0 {
		t.Fatalf("expected no backend call, got %d", api.sparseCalls)
	}
}

func TestDayNavigationExchangesDates(t *testing.T) {
	api := newFakeAPI()
	store := NewStore(api, nil)

	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}
	if err := store.NextDay(context.Background()); err != nil {
		t.Fatalf("next day: %v", err)
	}
	if store.Date().String() != "2024-06-02" {
		t.Fatalf("expected 2024-06-02, got %s", store.Date())
	}
	if err := store.PreviousDay(context.Background()); err != nil {
		t.Fatalf("previous day: %v", err)
	}
	if store.Date().String() != "2024-06-01" {
		t.Fatalf("expected 2024-06-01, got %s", store.Date())
	}
	// The original june1 value is untouched by navigation.
	if june1.String() != "2024-06-01" {
		t.Fatalf("navigation mutated a shared date value")
	}
}

func TestCreateWithSingleSelectionDuplicatesPoint(t *testing.T) {
	api := newFakeAPI()
	origin := api.add(47.0, 8.0, june1At(9), "CH")

	rec := &recorder{}
	store := NewStore(api, rec.record)
	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}
	store.SetSelected([]backend.LocationEntry{origin})

	if err := store.Create(context.Background()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if api.addCalls != 1 {
		t.Fatalf("expected 1 create call, got %d", api.addCalls)
	}
	if len(store.Entries()) != 2 {
		t.Fatalf("expected reload with 2 entries, got %d", len(store.Entries()))
	}
	// The newly created entry is preselected.
	if len(store.Selected()) != 1 || store.Selected()[0].ID == origin.ID {
		t.Fatalf("expected new entry preselected, got %v", store.Selected())
	}
	created := store.Selected()[0]
	if created.Latitude != origin.Latitude || created.Longitude != origin.Longitude {
		t.Fatalf("expected duplicate-at-point coordinates")
	}
	if !created.Timestamp.Equal(origin.Timestamp) {
		t.Fatalf("expected duplicated timestamp, got %v", created.Timestamp)
	}
	if len(rec.notifications) != 1 || rec.notifications[0].Severity != notify.SeveritySuccess {
		t.Fatalf("expected one success notification, got %v", rec.notifications)
	}
}

func TestCreateWithEmptySelectionUsesCenterAndLocalNoon(t *testing.T) {
	api := newFakeAPI()
	api.add(46.9, 7.4, june1At(9), "CH")

	store := NewStore(api, nil)
	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}
	center := store.Center()

	if err := store.Create(context.Background()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if api.addCalls != 1 {
		t.Fatalf("expected 1 create call, got %d", api.addCalls)
	}

	var created backend.LocationEntry
	for _, e := range api.entries {
		if e.ID > 1 {
			created = e
		}
	}
	if created.Latitude != center.Lat || created.Longitude != center.Lng {
		t.Fatalf("expected creation at map center")
	}
	local := created.Timestamp.In(time.Local)
	if local.Hour() != 12 || local.Minute() != 0 {
		t.Fatalf("expected local noon, got %v", local)
	}
}

func TestCreateWithMultiSelectionIsDisallowed(t *testing.T) {
	api := newFakeAPI()
	a := api.add(47.0, 8.0, june1At(9), "CH")
	b := api.add(47.1, 8.1, june1At(10), "CH")

	store := NewStore(api, nil)
	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}
	store.SetSelected([]backend.LocationEntry{a, b})

	if err := store.Create(context.Background()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if api.addCalls != 0 {
		t.Fatalf("expected no create call for multi-selection, got %d", api.addCalls)
	}
}

func TestCreateFailureLeavesStateUntouched(t *testing.T) {
	api := newFakeAPI()
	api.add(47.0, 8.0, june1At(9), "CH")

	rec := &recorder{}
	store := NewStore(api, rec.record)
	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}

	api.failNext = errors.New("boom")
	if err := store.Create(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(store.Entries()) != 1 {
		t.Fatalf("expected local state unchanged, got %d entries", len(store.Entries()))
	}
	if len(rec.notifications) != 1 || rec.notifications[0].Severity != notify.SeverityError {
		t.Fatalf("expected one error notification, got %v", rec.notifications)
	}
}

func TestUpdateReloadsFromServer(t *testing.T) {
	api := newFakeAPI()
	entry := api.add(47.0, 8.0, june1At(9), "CH")

	store := NewStore(api, nil)
	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}

	entry.Latitude = 48.0
	if err := store.Update(context.Background(), entry); err != nil {
		t.Fatalf("update: %v", err)
	}
	if api.updateCalls != 1 {
		t.Fatalf("expected 1 update call, got %d", api.updateCalls)
	}
	if store.Entries()[0].Latitude != 48.0 {
		t.Fatalf("expected reloaded entry to carry the update")
	}
}

func TestUpdateUnpersistedEntryIsNoOp(t *testing.T) {
	api := newFakeAPI()
	store := NewStore(api, nil)

	if err := store.Update(context.Background(), backend.LocationEntry{ID: 0}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if api.updateCalls != 0 {
		t.Fatalf("expected no backend call, got %d", api.updateCalls)
	}
}

func TestMarkerDragged(t *testing.T) {
	api := newFakeAPI()
	entry := api.add(47.0, 8.0, june1At(9), "CH")

	store := NewStore(api, nil)
	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}

	if err := store.MarkerDragged(context.Background(), entry.ID, 47.5, 8.5); err != nil {
		t.Fatalf("marker dragged: %v", err)
	}
	moved := api.entries[entry.ID]
	if moved.Latitude != 47.5 || moved.Longitude != 8.5 {
		t.Fatalf("expected persisted move, got %v", moved)
	}

	// Dragging an unknown marker does nothing.
	if err := store.MarkerDragged(context.Background(), 999, 1, 1); err != nil {
		t.Fatalf("unknown marker: %v", err)
	}
	if api.updateCalls != 1 {
		t.Fatalf("expected 1 update call, got %d", api.updateCalls)
	}
}

func TestDeleteSelectedBatch(t *testing.T) {
	api := newFakeAPI()
	a := api.add(47.0, 8.0, june1At(9), "CH")
	b := api.add(47.1, 8.1, june1At(10), "CH")
	api.add(47.2, 8.2, june1At(11), "CH")

	store := NewStore(api, nil)
	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}
	store.SetSelected([]backend.LocationEntry{a, b})

	if err := store.DeleteSelected(context.Background()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if api.deleteCalls != 1 {
		t.Fatalf("expected one batch delete, got %d", api.deleteCalls)
	}
	if len(store.Entries()) != 1 {
		t.Fatalf("expected 1 entry after reload, got %d", len(store.Entries()))
	}
	if len(store.Selected()) != 0 {
		t.Fatalf("expected empty selection after reload")
	}
}

func TestDeleteSelectedEmptyIsNoOp(t *testing.T) {
	api := newFakeAPI()
	store := NewStore(api, nil)

	if err := store.DeleteSelected(context.Background()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if api.deleteCalls != 0 {
		t.Fatalf("expected no backend call")
	}
}

func TestPickNearestSelectsAndToggles(t *testing.T) {
	api := newFakeAPI()
	api.add(47.0, 8.0, june1At(9), "CH")
	nearest := api.add(47.5, 8.0, june1At(10), "CH")
	api.add(48.0, 8.0, june1At(11), "CH")

	store := NewStore(api, nil)
	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}

	click := geo.Point{Lat: 47.51, Lng: 8.01}
	picked := store.PickNearest(click)
	if picked == nil || picked.ID != nearest.ID {
		t.Fatalf("expected nearest entry picked, got %v", picked)
	}
	if len(store.Selected()) != 1 || store.Selected()[0].ID != nearest.ID {
		t.Fatalf("expected single selection, got %v", store.Selected())
	}

	// Clicking the sole selected point again deselects it.
	if picked = store.PickNearest(click); picked != nil {
		t.Fatalf("expected toggle to deselect, got %v", picked)
	}
	if len(store.Selected()) != 0 {
		t.Fatalf("expected empty selection after toggle")
	}

	// And a third click selects it again.
	if picked = store.PickNearest(click); picked == nil || picked.ID != nearest.ID {
		t.Fatalf("expected reselection, got %v", picked)
	}
}

func TestPickNearestEmptyPath(t *testing.T) {
	store := NewStore(newFakeAPI(), nil)
	if picked := store.PickNearest(geo.Point{Lat: 47, Lng: 8}); picked != nil {
		t.Fatalf("expected nil for empty path")
	}
}

func TestHighlightIndependentOfSelection(t *testing.T) {
	api := newFakeAPI()
	entry := api.add(47.0, 8.0, june1At(9), "CH")

	store := NewStore(api, nil)
	store.SetSelected([]backend.LocationEntry{entry})
	store.SetHighlighted(&entry)
	if store.Highlighted() == nil || store.Highlighted().ID != entry.ID {
		t.Fatalf("expected highlight set")
	}
	store.SetHighlighted(nil)
	if store.Highlighted() != nil {
		t.Fatalf("expected highlight cleared")
	}
	if len(store.Selected()) != 1 {
		t.Fatalf("highlight must not touch selection")
	}
}

func TestLocateZoomLevels(t *testing.T) {
	api := newFakeAPI()
	first := api.add(47.0, 8.0, june1At(9), "CH")
	second := api.add(47.5, 8.5, june1At(10), "CH")

	store := NewStore(api, nil)
	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}

	store.SetSelected([]backend.LocationEntry{second})
	store.Locate()
	if store.Zoom() != 16 || store.Center().Lat != second.Latitude {
		t.Fatalf("expected close zoom on selection")
	}

	store.SetSelected(nil)
	store.Locate()
	if store.Zoom() != 11 || store.Center().Lat != first.Latitude {
		t.Fatalf("expected wide zoom on day path start")
	}
}

func TestTripViewReloadsAfterMutation(t *testing.T) {
	api := newFakeAPI()
	entry := api.add(47.0, 8.0, june1At(9), "CH")
	api.add(48.0, 8.0, time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC), "DE")

	store := NewStore(api, nil)
	if err := store.LoadDate(context.Background(), june1); err != nil {
		t.Fatalf("load date: %v", err)
	}

	tr := backend.Trip{
		ID:    1,
		Start: june1,
		End:   backend.NewDate(2024, 6, 2),
		Title: "Rhine",
	}
	if err := store.OpenTrip(context.Background(), tr); err != nil {
		t.Fatalf("open trip: %v", err)
	}
	if len(store.TripEntries()) != 2 {
		t.Fatalf("expected 2 trip entries, got %d", len(store.TripEntries()))
	}

	store.SetSelected([]backend.LocationEntry{entry})
	if err := store.DeleteSelected(context.Background()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.TripEntries()) != 1 {
		t.Fatalf("expected trip view reloaded after mutation, got %d", len(store.TripEntries()))
	}

	store.CloseTrip()
	if store.Trip() != nil || store.TripEntries() != nil {
		t.Fatalf("expected trip view discarded")
	}
}
