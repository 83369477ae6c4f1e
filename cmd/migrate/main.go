// cmd/migrate/main.go
// Migrates data from the legacy MySQL race_info database into the new store.
//
// Usage:
//
//	MYSQL_DSN="user:pass@tcp(host:3306)/race_info?parseTime=true" \
//	DB_PASS="pgpass" \
//	go run ./cmd/migrate
package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"

	"raceinfo/config"
	bundb "raceinfo/db"
	"raceinfo/models"
)

const batchSize = 500

func main() {
	ctx := context.Background()

	cfg := config.Load()

	// --- MySQL ---
	if cfg.MySQLDSN == "" {
		log.Fatal("MYSQL_DSN required, e.g.: user:pass@tcp(host:3306)/race_info?parseTime=true")
	}
	myDB, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("open mysql: %v", err)
	}
	defer myDB.Close()
	myDB.SetMaxOpenConns(4)
	if err := myDB.PingContext(ctx); err != nil {
		log.Fatalf("ping mysql: %v", err)
	}
	log.Println("connected to MySQL")

	// --- target store ---
	newDB := bundb.Setup(cfg)
	defer newDB.Close()
	log.Printf("connected to %s", cfg.DBDriver)

	// Create tables (idempotent)
	if err := bundb.CreateTables(ctx, newDB); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	// Parents load before race_participants so the FKs hold.
	steps := []struct {
		name string
		fn   func() (int, error)
	}{
		{"races", func() (int, error) { return migrateRaces(ctx, myDB, newDB) }},
		{"racers", func() (int, error) { return migrateRacers(ctx, myDB, newDB) }},
		{"race_participants", func() (int, error) { return migrateParticipants(ctx, myDB, newDB) }},
	}

	for _, s := range steps {
		n, err := s.fn()
		if err != nil {
			log.Fatalf("migrate %s: %v", s.name, err)
		}
		log.Printf("%-18s  %d rows migrated", s.name, n)
	}

	resetSequences(ctx, newDB, cfg.DBDriver)
	log.Println("migration complete")
}

// --- helpers ---

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullStr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

func nullDate(n sql.NullTime) *string {
	if !n.Valid {
		return nil
	}
	v := n.Time.Format("2006-01-02")
	return &v
}

func nullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

// bulkInsert inserts a batch, skipping rows that already exist (idempotent re-runs).
func bulkInsert[T any](ctx context.Context, db *bun.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := db.NewInsert().Model(&rows).On("CONFLICT DO NOTHING").Exec(ctx)
	return err
}

// --- per-table migrations ---

func migrateRaces(ctx context.Context, myDB *sql.DB, newDB *bun.DB) (int, error) {
	rows, err := myDB.QueryContext(ctx,
		"SELECT RaceId, Name, City, Type, Date, StartTime FROM races")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var batch []models.Race
	total := 0
	for rows.Next() {
		var (
			raceID    int
			name      sql.NullString
			city      sql.NullString
			rtype     sql.NullString
			date      sql.NullTime
			startTime sql.NullTime
		)
		if err := rows.Scan(&raceID, &name, &city, &rtype, &date, &startTime); err != nil {
			return total, err
		}
		batch = append(batch, models.Race{
			RaceID:    raceID,
			Name:      nullStr(name),
			City:      nullStr(city),
			Type:      nullStr(rtype),
			Date:      nullDate(date),
			StartTime: nullTime(startTime),
		})
		if len(batch) >= batchSize {
			if err := bulkInsert(ctx, newDB, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := bulkInsert(ctx, newDB, batch); err != nil {
		return total, err
	}
	return total + len(batch), rows.Err()
}

func migrateRacers(ctx context.Context, myDB *sql.DB, newDB *bun.DB) (int, error) {
	rows, err := myDB.QueryContext(ctx,
		`SELECT RacerId, FirstName, LastName, Email, Gender, TeamName, YearOfBirth, Age
		 FROM racers`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var batch []models.Racer
	total := 0
	for rows.Next() {
		var (
			racerID     int
			firstName   sql.NullString
			lastName    sql.NullString
			email       sql.NullString
			gender      sql.NullString
			teamName    sql.NullString
			yearOfBirth sql.NullInt64
			age         sql.NullInt64
		)
		if err := rows.Scan(&racerID, &firstName, &lastName, &email, &gender,
			&teamName, &yearOfBirth, &age); err != nil {
			return total, err
		}
		batch = append(batch, models.Racer{
			RacerID:     racerID,
			FirstName:   nullStr(firstName),
			LastName:    nullStr(lastName),
			Email:       nullStr(email),
			Gender:      nullStr(gender),
			TeamName:    nullStr(teamName),
			YearOfBirth: nullInt(yearOfBirth),
			Age:         nullInt(age),
		})
		if len(batch) >= batchSize {
			if err := bulkInsert(ctx, newDB, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := bulkInsert(ctx, newDB, batch); err != nil {
		return total, err
	}
	return total + len(batch), rows.Err()
}

func migrateParticipants(ctx context.Context, myDB *sql.DB, newDB *bun.DB) (int, error) {
	rows, err := myDB.QueryContext(ctx,
		"SELECT RaceId, RacerId, Bib, ChipId, Category FROM race_participants")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var batch []models.Participation
	total := 0
	for rows.Next() {
		var (
			raceID   int
			racerID  int
			bib      sql.NullString
			chipID   sql.NullString
			category sql.NullString
		)
		if err := rows.Scan(&raceID, &racerID, &bib, &chipID, &category); err != nil {
			return total, err
		}
		batch = append(batch, models.Participation{
			RaceID:   raceID,
			RacerID:  racerID,
			Bib:      nullStr(bib),
			ChipID:   nullStr(chipID),
			Category: nullStr(category),
		})
		if len(batch) >= batchSize {
			if err := bulkInsert(ctx, newDB, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := bulkInsert(ctx, newDB, batch); err != nil {
		return total, err
	}
	return total + len(batch), rows.Err()
}

// resetSequences advances the racers sequence to MAX(RacerId) so new inserts
// don't conflict with migrated ids. SQLite picks max+1 on its own.
func resetSequences(ctx context.Context, newDB *bun.DB, driver string) {
	if driver != "postgres" {
		return
	}
	q := `SELECT setval(pg_get_serial_sequence('racers', 'RacerId'),
	             COALESCE((SELECT MAX("RacerId") FROM racers), 1))`
	if _, err := newDB.ExecContext(ctx, q); err != nil {
		log.Printf("reset racers sequence: %v", err)
	} else {
		log.Println("sequences reset")
	}
}
