// Package backendtest provides an in-memory HTTP stand-in for the
// thereabout backend. Client, store and poller tests run against it, and
// cmd/devserver exposes it for manual frontend work. Location entries,
// lists and trips are fully mutable; health, message and statistics data
// are seeded fixtures.
package backendtest

import (
	"sort"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/aerobless/thereabout/internal/backend"
	"github.com/aerobless/thereabout/internal/shared/geo"
	"github.com/aerobless/thereabout/internal/statistics"
)

// sparseLimit caps the number of entries returned by the sparse endpoint.
const sparseLimit = 500

const defaultPageSize = 25

// ImportedFile records one upload accepted by the import endpoint.
type ImportedFile struct {
	JobID      string
	Name       string
	ImportType string
	Receiver   string
	Size       int64
}

type Server struct {
	App *fiber.App

	// APIKey, when non-empty, is required in the x-api-key header of
	// every request.
	APIKey string

	// Geocoder, when set, re-estimates estimatedIsoCountryCode on every
	// created or updated entry, as the real backend does.
	Geocoder geo.Geocoder

	mu         sync.Mutex
	entries    map[int64]backend.LocationEntry
	nextID     int64
	trips      map[int64]backend.Trip
	nextTripID int64
	lists      map[int64]storedList
	nextListID int64

	health     backend.HealthResponse
	messages   []backend.Message
	statistics *backend.Statistics

	importScript []backend.FileImportStatus
	importIdx    int
	imports      []ImportedFile
}

// storedList keeps membership by id so list fetches resolve to the current
// entry state and drop deleted entries.
type storedList struct {
	name     string
	entryIDs []int64
}

func New() *Server {
	app := fiber.New()
	app.Use(recover.New())

	s := &Server{
		App:     app,
		entries: make(map[int64]backend.LocationEntry),
		trips:   make(map[int64]backend.Trip),
		lists:   make(map[int64]storedList),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.App.Use(func(c *fiber.Ctx) error {
		if s.APIKey != "" && c.Get("x-api-key") != s.APIKey {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid api key")
		}
		return c.Next()
	})

	s.App.Get("/location", func(c *fiber.Ctx) error {
		from, to, err := dateRange(c)
		if err != nil {
			return err
		}
		return c.JSON(s.entriesBetween(from, to))
	})

	s.App.Get("/location/sparse", func(c *fiber.Ctx) error {
		from, to, err := dateRange(c)
		if err != nil {
			return err
		}
		return c.JSON(downsample(s.entriesBetween(from, to), sparseLimit))
	})

	s.App.Post("/location", func(c *fiber.Ctx) error {
		var entry backend.LocationEntry
		if err := c.BodyParser(&entry); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if entry.Timestamp.IsZero() {
			return fiber.NewError(fiber.StatusBadRequest, "timestamp required")
		}
		created := s.addEntry(entry)
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	s.App.Put("/location/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		var entry backend.LocationEntry
		if err := c.BodyParser(&entry); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		entry.ID = int64(id)

		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.entries[entry.ID]; !ok {
			return fiber.NewError(fiber.StatusNotFound, "entry not found")
		}
		// Manual edits reset the accuracy and are re-geocoded, like the
		// real backend does.
		entry.Source = "THEREABOUT_API_UPDATE"
		entry.HorizontalAccuracy = 0
		entry.VerticalAccuracy = 0
		if code, ok := s.estimateCountry(entry); ok {
			entry.EstimatedIsoCountryCode = code
		}
		s.entries[entry.ID] = entry
		return c.JSON(entry)
	})

	s.App.Delete("/location", func(c *fiber.Ctx) error {
		var ids []int64
		if err := c.BodyParser(&ids); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, id := range ids {
			delete(s.entries, id)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	s.App.Get("/location-list", func(c *fiber.Ctx) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		lists := make([]backend.LocationList, 0, len(s.lists))
		for id := range s.lists {
			lists = append(lists, s.listLocked(id))
		}
		sort.Slice(lists, func(i, j int) bool { return lists[i].ID < lists[j].ID })
		return c.JSON(lists)
	})

	s.App.Get("/location-list/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.lists[int64(id)]; !ok {
			return fiber.NewError(fiber.StatusNotFound, "list not found")
		}
		return c.JSON(s.listLocked(int64(id)))
	})

	s.App.Post("/location-list", func(c *fiber.Ctx) error {
		var list backend.LocationList
		if err := c.BodyParser(&list); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if list.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.nextListID++
		s.lists[s.nextListID] = storedList{name: list.Name, entryIDs: s.memberIDsLocked(list.Entries)}
		return c.Status(fiber.StatusCreated).JSON(s.listLocked(s.nextListID))
	})

	s.App.Put("/location-list/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		var list backend.LocationList
		if err := c.BodyParser(&list); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.lists[int64(id)]; !ok {
			return fiber.NewError(fiber.StatusNotFound, "list not found")
		}
		s.lists[int64(id)] = storedList{name: list.Name, entryIDs: s.memberIDsLocked(list.Entries)}
		return c.JSON(s.listLocked(int64(id)))
	})

	s.App.Delete("/location-list/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.lists, int64(id))
		return c.SendStatus(fiber.StatusNoContent)
	})

	s.App.Post("/location-list/:id/location", func(c *fiber.Ctx) error {
		id, entryID, err := listMembership(c)
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		list, ok := s.lists[id]
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "list not found")
		}
		for _, member := range list.entryIDs {
			if member == entryID {
				return fiber.NewError(fiber.StatusBadRequest, "entry already in list")
			}
		}
		// Unknown entries are silently skipped.
		if _, ok := s.entries[entryID]; ok {
			list.entryIDs = append(list.entryIDs, entryID)
			s.lists[id] = list
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	s.App.Delete("/location-list/:id/location", func(c *fiber.Ctx) error {
		id, entryID, err := listMembership(c)
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		list, ok := s.lists[id]
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "list not found")
		}
		kept := list.entryIDs[:0]
		for _, member := range list.entryIDs {
			if member != entryID {
				kept = append(kept, member)
			}
		}
		list.entryIDs = kept
		s.lists[id] = list
		return c.SendStatus(fiber.StatusNoContent)
	})

	s.App.Get("/trip", func(c *fiber.Ctx) error {
		s.mu.Lock()
		trips := make([]backend.Trip, 0, len(s.trips))
		for _, t := range s.trips {
			trips = append(trips, t)
		}
		s.mu.Unlock()
		sort.Slice(trips, func(i, j int) bool {
			return trips[i].Start.Before(trips[j].Start.Time)
		})
		return c.JSON(trips)
	})

	s.App.Post("/trip", func(c *fiber.Ctx) error {
		var trip backend.Trip
		if err := c.BodyParser(&trip); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if trip.Title == "" {
			return fiber.NewError(fiber.StatusBadRequest, "title required")
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.nextTripID++
		trip.ID = s.nextTripID
		trip.VisitedCountries = s.countriesBetweenLocked(trip.Start, trip.End)
		s.trips[trip.ID] = trip
		return c.Status(fiber.StatusCreated).JSON(trip)
	})

	s.App.Put("/trip/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		var trip backend.Trip
		if err := c.BodyParser(&trip); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		trip.ID = int64(id)

		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.trips[trip.ID]; !ok {
			return fiber.NewError(fiber.StatusNotFound, "trip not found")
		}
		trip.VisitedCountries = s.countriesBetweenLocked(trip.Start, trip.End)
		s.trips[trip.ID] = trip
		return c.JSON(trip)
	})

	s.App.Delete("/trip/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.trips, int64(id))
		return c.SendStatus(fiber.StatusNoContent)
	})

	s.App.Get("/health", func(c *fiber.Ctx) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		resp := s.health
		if resp.Metrics == nil {
			resp.Metrics = map[string][]backend.HealthSample{}
		}
		if resp.Workouts == nil {
			resp.Workouts = []backend.WorkoutSummary{}
		}
		return c.JSON(resp)
	})

	s.App.Get("/message", func(c *fiber.Ctx) error {
		date, err := backend.ParseDate(c.Query("date"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid date")
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		matched := []backend.Message{}
		for _, m := range s.messages {
			if backend.DateOf(m.Timestamp.UTC()) == date {
				matched = append(matched, m)
			}
		}
		return c.JSON(matched)
	})

	s.App.Get("/message/list", func(c *fiber.Ctx) error {
		return s.listMessages(c)
	})

	s.App.Post("/config/import-file", func(c *fiber.Ctx) error {
		file, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file required")
		}
		job := ImportedFile{
			JobID:      uuid.NewString(),
			Name:       file.Filename,
			ImportType: c.FormValue("importType"),
			Receiver:   c.FormValue("receiver"),
			Size:       file.Size,
		}
		s.mu.Lock()
		s.imports = append(s.imports, job)
		s.importIdx = 0
		s.mu.Unlock()
		return c.JSON(fiber.Map{"jobId": job.JobID})
	})

	s.App.Get("/config/import-status", func(c *fiber.Ctx) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.importScript) == 0 {
			return c.JSON(backend.FileImportStatus{Status: backend.ImportIdle})
		}
		idx := s.importIdx
		if idx >= len(s.importScript) {
			idx = len(s.importScript) - 1
		}
		s.importIdx++
		return c.JSON(s.importScript[idx])
	})

	s.App.Get("/statistics", func(c *fiber.Ctx) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.statistics != nil {
			return c.JSON(*s.statistics)
		}
		return c.JSON(s.computeStatisticsLocked())
	})
}

// SeedEntries loads entries, assigning ids to any that lack one.
func (s *Server) SeedEntries(entries ...backend.LocationEntry) {
	for _, e := range entries {
		s.addEntry(e)
	}
}

// SeedTrips loads trips, assigning ids to any that lack one.
func (s *Server) SeedTrips(trips ...backend.Trip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range trips {
		if t.ID == 0 {
			s.nextTripID++
			t.ID = s.nextTripID
		} else if t.ID > s.nextTripID {
			s.nextTripID = t.ID
		}
		s.trips[t.ID] = t
	}
}

// SeedLists loads lists, assigning ids to any that lack one. Member entries
// must be seeded first; unknown members are dropped.
func (s *Server) SeedLists(lists ...backend.LocationList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lists {
		if l.ID == 0 {
			s.nextListID++
			l.ID = s.nextListID
		} else if l.ID > s.nextListID {
			s.nextListID = l.ID
		}
		s.lists[l.ID] = storedList{name: l.Name, entryIDs: s.memberIDsLocked(l.Entries)}
	}
}

func (s *Server) SetHealth(resp backend.HealthResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = resp
}

func (s *Server) SetMessages(messages ...backend.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = messages
}

func (s *Server) SetStatistics(stats backend.Statistics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statistics = &stats
}

// ScriptImportStatus sets the sequence returned by consecutive status
// fetches. The last status repeats once the script is exhausted.
func (s *Server) ScriptImportStatus(statuses ...backend.FileImportStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.importScript = statuses
	s.importIdx = 0
}

// Entries returns the stored entries sorted chronologically.
func (s *Server) Entries() []backend.LocationEntry {
	s.mu.Lock()
	entries := make([]backend.LocationEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	sortEntries(entries)
	return entries
}

// Imports returns the uploads accepted so far.
func (s *Server) Imports() []ImportedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ImportedFile(nil), s.imports...)
}

func (s *Server) addEntry(entry backend.LocationEntry) backend.LocationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == 0 {
		s.nextID++
		entry.ID = s.nextID
	} else if entry.ID > s.nextID {
		s.nextID = entry.ID
	}
	if code, ok := s.estimateCountry(entry); ok {
		entry.EstimatedIsoCountryCode = code
	}
	s.entries[entry.ID] = entry
	return entry
}

func (s *Server) estimateCountry(entry backend.LocationEntry) (string, bool) {
	if s.Geocoder == nil {
		return "", false
	}
	return s.Geocoder.CountryISO(geo.Point{Lat: entry.Latitude, Lng: entry.Longitude})
}

func (s *Server) listLocked(id int64) backend.LocationList {
	stored := s.lists[id]
	list := backend.LocationList{ID: id, Name: stored.name, Entries: []backend.LocationEntry{}}
	for _, entryID := range stored.entryIDs {
		if e, ok := s.entries[entryID]; ok {
			list.Entries = append(list.Entries, e)
		}
	}
	return list
}

func (s *Server) memberIDsLocked(entries []backend.LocationEntry) []int64 {
	var ids []int64
	for _, e := range entries {
		if _, ok := s.entries[e.ID]; ok {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

func (s *Server) entriesBetween(from, to backend.Date) []backend.LocationEntry {
	s.mu.Lock()
	matched := []backend.LocationEntry{}
	for _, e := range s.entries {
		d := backend.DateOf(e.Timestamp.UTC())
		if d.Before(from.Time) || d.After(to.Time) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.Unlock()
	sortEntries(matched)
	return matched
}

func (s *Server) countriesBetweenLocked(from, to backend.Date) []backend.VisitedCountry {
	seen := map[string]bool{}
	countries := []backend.VisitedCountry{}
	for _, e := range s.entries {
		d := backend.DateOf(e.Timestamp.UTC())
		if d.Before(from.Time) || d.After(to.Time) {
			continue
		}
		code := e.EstimatedIsoCountryCode
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		countries = append(countries, backend.VisitedCountry{
			CountryIsoCode: code,
			CountryName:    statistics.CountryName(code),
		})
	}
	sort.Slice(countries, func(i, j int) bool {
		return countries[i].CountryIsoCode < countries[j].CountryIsoCode
	})
	return countries
}

func (s *Server) computeStatisticsLocked() backend.Statistics {
	type agg struct {
		days  map[backend.Date]bool
		first backend.Date
		last  backend.Date
	}
	byCountry := map[string]*agg{}
	for _, e := range s.entries {
		code := e.EstimatedIsoCountryCode
		if code == "" {
			continue
		}
		d := backend.DateOf(e.Timestamp.UTC())
		a := byCountry[code]
		if a == nil {
			a = &agg{days: map[backend.Date]bool{}, first: d, last: d}
			byCountry[code] = a
		}
		a.days[d] = true
		if d.Before(a.first.Time) {
			a.first = d
		}
		if d.After(a.last.Time) {
			a.last = d
		}
	}

	stats := backend.Statistics{VisitedCountries: []backend.CountryStatistic{}}
	for code, a := range byCountry {
		stats.VisitedCountries = append(stats.VisitedCountries, backend.CountryStatistic{
			CountryIsoCode:    code,
			CountryName:       statistics.CountryName(code),
			Continent:         statistics.ContinentOf(code),
			NumberOfDaysSpent: len(a.days),
			FirstVisit:        a.first,
			LastVisit:         a.last,
		})
	}
	sort.Slice(stats.VisitedCountries, func(i, j int) bool {
		return stats.VisitedCountries[i].NumberOfDaysSpent > stats.VisitedCountries[j].NumberOfDaysSpent
	})
	return stats
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	page := c.QueryInt("page", 0)
	size := c.QueryInt("size", defaultPageSize)
	if size <= 0 {
		size = defaultPageSize
	}
	search := strings.ToLower(c.Query("search"))
	source := c.Query("source")
	sender := c.Query("sender")
	receiver := c.Query("receiver")

	var from, to backend.Date
	if q := c.Query("dateFrom"); q != "" {
		d, err := backend.ParseDate(q)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid dateFrom")
		}
		from = d
	}
	if q := c.Query("dateTo"); q != "" {
		d, err := backend.ParseDate(q)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid dateTo")
		}
		to = d
	}

	s.mu.Lock()
	matched := []backend.Message{}
	for _, m := range s.messages {
		if source != "" && m.Source != source {
			continue
		}
		if sender != "" && m.Sender != sender {
			continue
		}
		if receiver != "" && m.Receiver != receiver {
			continue
		}
		d := backend.DateOf(m.Timestamp.UTC())
		if !from.IsZero() && d.Before(from.Time) {
			continue
		}
		if !to.IsZero() && d.After(to.Time) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(m.Subject), search) &&
			!strings.Contains(strings.ToLower(m.Body), search) {
			continue
		}
		matched = append(matched, m)
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	total := int64(len(matched))
	totalPages := (len(matched) + size - 1) / size
	start := page * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	return c.JSON(backend.MessagePage{
		Content:       matched[start:end],
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
	})
}

func listMembership(c *fiber.Ctx) (listID, entryID int64, err error) {
	id, err := c.ParamsInt("id")
	if err != nil {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	var body struct {
		LocationHistoryEntryID int64 `json:"locationHistoryEntryId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return int64(id), body.LocationHistoryEntryID, nil
}

func dateRange(c *fiber.Ctx) (backend.Date, backend.Date, error) {
	from, err := backend.ParseDate(c.Query("from"))
	if err != nil {
		return backend.Date{}, backend.Date{}, fiber.NewError(fiber.StatusBadRequest, "invalid from date")
	}
	to, err := backend.ParseDate(c.Query("to"))
	if err != nil {
		return backend.Date{}, backend.Date{}, fiber.NewError(fiber.StatusBadRequest, "invalid to date")
	}
	return from, to, nil
}

func sortEntries(entries []backend.LocationEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}

// downsample keeps at most limit entries, spaced evenly.
func downsample(entries []backend.LocationEntry, limit int) []backend.LocationEntry {
	if len(entries) <= limit {
		return entries
	}
	step := float64(len(entries)) / float64(limit)
	sampled := make([]backend.LocationEntry, 0, limit)
	for i := 0; i < limit; i++ {
		sampled = append(sampled, entries[int(float64(i)*step)])
	}
	return sampled
}
