// cmd/racerinfo/main.go
// Looks up a timing chip and prints the racer's registrations.
//
// Usage:
//
//	go run ./cmd/racerinfo -chip AA0001
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"raceinfo/config"
	bundb "raceinfo/db"
)

func main() {
	chip := flag.String("chip", "", "chip id (required)")
	flag.Parse()

	if *chip == "" {
		log.Fatal("-chip is required")
	}

	cfg := config.Load()
	if cfg.DBDriver == "memory" {
		log.Fatal("racerinfo needs a database, set DB_DRIVER to sqlite or postgres")
	}

	db := bundb.Setup(cfg)
	defer db.Close()

	store := bundb.NewStore(db)
	rows, err := store.LookupChip(context.Background(), *chip)
	if err != nil {
		log.Fatalf("lookup chip: %v", err)
	}
	if len(rows) == 0 {
		log.Fatalf("chip %s is not registered for any race", *chip)
	}

	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		log.Fatalf("marshal rows: %v", err)
	}
	fmt.Println(string(out))
}
