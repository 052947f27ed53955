// Command devserver runs the in-memory development backend. It serves the
// same HTTP interface as the real thereabout backend, pre-seeded with a few
// days of demo data, so the UI and the CLI can be exercised without a
// database or a location history export.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/aerobless/thereabout/internal/backend"
	"github.com/aerobless/thereabout/internal/backendtest"
	"github.com/aerobless/thereabout/internal/config"
	"github.com/aerobless/thereabout/internal/shared/geo"
)

func main() {
	cfg := config.Load()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := run(context.Background(), cfg, signals, nil); err != nil {
		log.Printf("devserver exited with error: %v", err)
	}
}

type listenFunc func(app *fiber.App, addr string) error

var defaultListen listenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

func run(ctx context.Context, cfg config.Config, signals <-chan os.Signal, listen listenFunc) error {
	srv := backendtest.New()
	srv.APIKey = cfg.APIKey
	srv.Geocoder = regionGeocoder{}
	srv.App.Use(logger.New())
	seed(srv)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.DevServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.App.ShutdownWithContext(shutdownCtx)
}

// regionGeocoder estimates the country of a point from coarse bounding
// boxes. Good enough for demo data around central Europe and Japan.
type regionGeocoder struct{}

var regions = []struct {
	code           string
	minLat, maxLat float64
	minLng, maxLng float64
}{
	{"CH", 45.8, 47.9, 5.9, 10.5},
	{"DE", 47.2, 55.1, 5.8, 15.0},
	{"FR", 42.3, 51.1, -4.8, 8.2},
	{"IT", 36.6, 47.1, 6.6, 18.5},
	{"JP", 31.0, 45.5, 129.5, 145.8},
}

func (regionGeocoder) CountryISO(p geo.Point) (string, bool) {
	for _, r := range regions {
		if p.Lat >= r.minLat && p.Lat <= r.maxLat && p.Lng >= r.minLng && p.Lng <= r.maxLng {
			return r.code, true
		}
	}
	return "", false
}

func seed(srv *backendtest.Server) {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	// A day around Zurich and a short trip to Japan last month.
	srv.SeedEntries(
		entry(today.Add(8*time.Hour), 47.3769, 8.5417),
		entry(today.Add(12*time.Hour+30*time.Minute), 47.3667, 8.5500),
		entry(today.Add(18*time.Hour), 47.3769, 8.5417),
	)
	tripStart := today.AddDate(0, -1, 0)
	for i := 0; i < 7; i++ {
		srv.SeedEntries(entry(tripStart.AddDate(0, 0, i).Add(10*time.Hour), 35.6812, 139.7671))
	}
	srv.SeedTrips(backend.Trip{
		Start:       backend.DateOf(tripStart),
		End:         backend.DateOf(tripStart.AddDate(0, 0, 6)),
		Title:       "Tokyo",
		Description: "Spring trip to Japan",
		VisitedCountries: []backend.VisitedCountry{
			{CountryIsoCode: "JP", CountryName: "Japan"},
		},
	})

	srv.SeedLists(backend.LocationList{
		Name:    "Favourite spots",
		Entries: []backend.LocationEntry{{ID: 1}, {ID: 2}},
	})

	weight := 80.2
	active := 540.0
	basal := 1700.0
	srv.SetHealth(backend.HealthResponse{
		Metrics: map[string][]backend.HealthSample{
			"weight_body_mass":    {{Date: backend.DateOf(today).String(), Qty: &weight, Units: "kg"}},
			"active_energy":       {{Date: backend.DateOf(today).String(), Qty: &active, Units: "kcal"}},
			"basal_energy_burned": {{Date: backend.DateOf(today).String(), Qty: &basal, Units: "kcal"}},
		},
	})

	srv.SetMessages(backend.Message{
		ID:        1,
		Type:      "sms",
		Source:    "phone",
		Sender:    "+41790000000",
		Body:      "Landed in Tokyo!",
		Timestamp: tripStart.Add(9 * time.Hour),
	})

	srv.ScriptImportStatus(
		backend.FileImportStatus{Status: backend.ImportInProgress, Progress: 25},
		backend.FileImportStatus{Status: backend.ImportInProgress, Progress: 70},
		backend.FileImportStatus{Status: backend.ImportCompleted, Progress: 100},
	)
}

func entry(ts time.Time, lat, lng float64) backend.LocationEntry {
	return backend.LocationEntry{Latitude: lat, Longitude: lng, Timestamp: ts, Source: "seed"}
}
