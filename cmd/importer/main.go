// cmd/importer/main.go
// Pulls registrations from the Webscorer feed into the database.
//
// Usage:
//
//	go run ./cmd/importer -race 336262            # one race
//	go run ./cmd/importer -date 08/24/25          # every race on a day
//	go run ./cmd/importer                         # today's races (Sundays only)
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"raceinfo/config"
	bundb "raceinfo/db"
	"raceinfo/importer"
	applog "raceinfo/logger"
	"raceinfo/registry"
	"raceinfo/webscorer"
)

func main() {
	raceID := flag.Int("race", 0, "import a single race by Webscorer race id")
	date := flag.String("date", "", "import every race on a day, MM/DD/YY")
	parallel := flag.Bool("parallel", false, "fetch races concurrently")
	flag.Parse()

	cfg := config.Load()
	if cfg.WebscorerAPIID == "" || cfg.WebscorerAPIPriv == "" {
		log.Fatal("WEBSCORER_API_ID and WEBSCORER_API_PRIV are required")
	}

	logger, err := applog.New(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	reg := registry.New()

	var store *bundb.Store
	if cfg.DBDriver != "memory" {
		db := bundb.Setup(cfg)
		defer db.Close()
		if err := bundb.CreateTables(ctx, db); err != nil {
			log.Fatalf("create tables: %v", err)
		}
		store = bundb.NewStore(db)

		races, racers, parts, err := store.Load(ctx)
		if err != nil {
			log.Fatalf("load database: %v", err)
		}
		if err := reg.Restore(races, racers, parts); err != nil {
			log.Fatalf("restore state: %v", err)
		}
	}

	ws := webscorer.NewClient(cfg.WebscorerBaseURL, cfg.WebscorerAPIID, cfg.WebscorerAPIPriv)
	imp := importer.New(ws, reg, store, logger)

	var reports []importer.Report
	switch {
	case *raceID != 0:
		reports = []importer.Report{imp.ImportRace(ctx, *raceID)}
	case *date != "":
		day, err := time.Parse("01/02/06", *date)
		if err != nil {
			log.Fatalf("parse -date %q: %v", *date, err)
		}
		reports, err = imp.ImportDay(ctx, day, *parallel)
		if err != nil {
			log.Fatalf("import day: %v", err)
		}
	default:
		// Cron runs this daily; races are only on Sundays.
		today := time.Now()
		if today.Weekday() != time.Sunday {
			log.Println("no -race or -date given and today is not Sunday, nothing to do")
			os.Exit(0)
		}
		reports, err = imp.ImportDay(ctx, today, *parallel)
		if err != nil {
			log.Fatalf("import day: %v", err)
		}
	}

	out, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		log.Fatalf("marshal reports: %v", err)
	}
	fmt.Println(string(out))
}
