package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"raceinfo/config"
	"raceinfo/models"
)

// Setup opens the configured database. DB_DRIVER selects PostgreSQL or a
// local SQLite file; everything above this package speaks bun either way.
func Setup(cfg *config.Config) *bun.DB {
	var db *bun.DB
	switch cfg.DBDriver {
	case "sqlite":
		sqldb, err := sql.Open("sqlite", cfg.SQLitePath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL")
		if err != nil {
			log.Fatal("failed to open sqlite database:", err)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN())))
		db = bun.NewDB(sqldb, pgdialect.New())
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(context.Background()); err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	return db
}

// CreateTables creates all tables in dependency order. Column names follow
// the legacy race_info MySQL schema so existing imports stay valid.
func CreateTables(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{(*models.Race)(nil), (*models.Racer)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", model, err)
		}
	}

	if _, err := db.NewCreateTable().Model((*models.Participation)(nil)).IfNotExists().
		ForeignKey(`("RaceId") REFERENCES "races" ("RaceId") ON DELETE CASCADE`).
		ForeignKey(`("RacerId") REFERENCES "racers" ("RacerId") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("creating table for %T: %w", (*models.Participation)(nil), err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS race_participants_chip_idx ON race_participants ("ChipId")`,
		`CREATE INDEX IF NOT EXISTS race_participants_racer_idx ON race_participants ("RacerId")`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Printf("index: %v", err)
		}
	}

	return nil
}
