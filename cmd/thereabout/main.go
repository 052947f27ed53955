// Command thereabout is a terminal client for a thereabout backend. It
// renders location days, trips, health summaries and visited-country
// statistics, and can upload a location history export and follow the
// import to completion.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/aerobless/thereabout/internal/backend"
	"github.com/aerobless/thereabout/internal/config"
	"github.com/aerobless/thereabout/internal/health"
	"github.com/aerobless/thereabout/internal/history"
	"github.com/aerobless/thereabout/internal/importer"
	"github.com/aerobless/thereabout/internal/shared/notify"
	"github.com/aerobless/thereabout/internal/statistics"
	"github.com/aerobless/thereabout/internal/trip"
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	client := backend.NewClient(cfg.BackendURL, cfg.APIKey)
	if cfg.HTTPTimeout > 0 {
		client.HTTPClient.Timeout = cfg.HTTPTimeout
	}

	ctx := context.Background()
	var err error
	switch cmd := flag.Arg(0); cmd {
	case "day":
		err = showDay(ctx, client, flag.Arg(1))
	case "trips":
		err = showTrips(ctx, client)
	case "lists":
		err = showLists(ctx, client)
	case "health":
		err = showHealth(ctx, client, flag.Arg(1))
	case "stats":
		err = showStats(ctx, client)
	case "import":
		if flag.NArg() < 2 {
			usage()
			os.Exit(2)
		}
		err = runImport(ctx, client, cfg, flag.Arg(1), flag.Arg(2))
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", flag.Arg(0), err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: thereabout <command> [args]

commands:
  day [yyyy-MM-dd]        show the location entries of a day (default today)
  trips                   list trips with distance and visited countries
  lists                   show curated location lists and their entries
  health [yyyy-MM-dd]     show the health summary of a day and the weight trend
  stats                   show visited-country statistics
  import <file> [type]    upload a location history export and follow the import
`)
}

func parseDay(arg string) (backend.Date, error) {
	if arg == "" {
		return backend.DateOf(time.Now()), nil
	}
	return backend.ParseDate(arg)
}

func showDay(ctx context.Context, client *backend.Client, arg string) error {
	day, err := parseDay(arg)
	if err != nil {
		return err
	}

	store := history.NewStore(client, notify.Log)
	if err := store.LoadDate(ctx, day); err != nil {
		return err
	}

	entries := store.Entries()
	fmt.Printf("%s: %d entries\n", day, len(entries))
	for _, e := range entries {
		country := e.EstimatedIsoCountryCode
		if country == "" {
			country = "--"
		}
		fmt.Printf("  %s  %9.5f,%10.5f  %s %s\n",
			e.Timestamp.Format("15:04:05"), e.Latitude, e.Longitude, country, e.Note)
	}
	return nil
}

func showTrips(ctx context.Context, client *backend.Client) error {
	trips, err := client.Trips(ctx)
	if err != nil {
		return err
	}
	if len(trips) == 0 {
		fmt.Println("no trips recorded")
		return nil
	}

	for _, t := range trips {
		entries, err := client.Locations(ctx, t.Start, t.End)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s to %s, %d days)\n", t.Title, t.Start, t.End, trip.DaysSpent(t))
		fmt.Printf("  %d entries, %d km, countries: %s\n",
			len(entries), trip.TotalDistanceKm(entries), trip.CountryLabel(t))
	}
	return nil
}

func showLists(ctx context.Context, client *backend.Client) error {
	lists, err := client.LocationLists(ctx)
	if err != nil {
		return err
	}
	if len(lists) == 0 {
		fmt.Println("no lists created")
		return nil
	}

	for _, l := range lists {
		fmt.Printf("%s (%d entries)\n", l.Name, len(l.Entries))
		for _, e := range l.Entries {
			fmt.Printf("  %s  %9.5f,%10.5f  %s\n",
				e.Timestamp.Format("2006-01-02 15:04"), e.Latitude, e.Longitude, e.Note)
		}
	}
	return nil
}

func showHealth(ctx context.Context, client *backend.Client, arg string) error {
	day, err := parseDay(arg)
	if err != nil {
		return err
	}

	window := health.TrendRange30d
	resp, err := client.Health(ctx, window.WindowStart(day), day)
	if err != nil {
		return err
	}

	summary := health.SummarizeDay(resp, day)
	fmt.Printf("%s\n", day)
	if summary.Weight != nil {
		fmt.Printf("  weight: %.1f\n", *summary.Weight)
	}
	if summary.ActiveEnergy != nil {
		fmt.Printf("  active energy: %.0f %s\n", *summary.ActiveEnergy, summary.EnergyUnits)
	}
	if summary.BasalEnergy != nil {
		fmt.Printf("  basal energy: %.0f %s\n", *summary.BasalEnergy, summary.EnergyUnits)
	}
	for _, w := range summary.Workouts {
		fmt.Printf("  workout: %s (%.0f min)\n", w.Name, w.DurationSeconds/60)
	}

	points := health.WeightSeries(resp)
	overlay := health.TrendOverlay(points)
	if len(points) > 1 {
		fmt.Printf("  weight trend over %d days: %.1f -> %.1f\n",
			window.Days(), overlay[0], overlay[len(overlay)-1])
	}
	return nil
}

func showStats(ctx context.Context, client *backend.Client) error {
	stats, err := client.Statistics(ctx)
	if err != nil {
		return err
	}

	countries := stats.VisitedCountries
	statistics.SortByDays(countries)
	fmt.Printf("%d countries visited, %d days abroad\n",
		len(countries), statistics.DaysAbroad(countries))
	for _, c := range countries {
		fmt.Printf("  %s %s (%s): %d days, %s to %s\n",
			statistics.FlagEmoji(c.CountryIsoCode), c.CountryName,
			statistics.ContinentName(c.Continent), c.NumberOfDaysSpent,
			c.FirstVisit, c.LastVisit)
	}
	return nil
}

func runImport(ctx context.Context, client *backend.Client, cfg config.Config, path, importType string) error {
	if importType == "" {
		importType = "GOOGLE"
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := client.ImportFile(ctx, filepath.Base(path), file, importType, ""); err != nil {
		return err
	}
	log.Printf("upload accepted, waiting for the import to finish")

	poller := importer.NewPoller(client, cfg.ImportPollInterval, notify.Log, func(s backend.FileImportStatus) {
		log.Printf("import %s at %.0f%%", s.Status, s.Progress)
	})
	poller.Start()
	for poller.State() != importer.Done {
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}
