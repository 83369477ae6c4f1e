package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	bundb "raceinfo/db"
	"raceinfo/models"
)

func TestNullHelpers(t *testing.T) {
	require.Nil(t, nullInt(sql.NullInt64{}))
	require.Equal(t, 1984, *nullInt(sql.NullInt64{Int64: 1984, Valid: true}))

	require.Nil(t, nullStr(sql.NullString{}))
	require.Equal(t, "Ash", *nullStr(sql.NullString{String: "Ash", Valid: true}))

	when := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	require.Nil(t, nullDate(sql.NullTime{}))
	require.Equal(t, "2026-03-01", *nullDate(sql.NullTime{Time: when, Valid: true}))

	require.Nil(t, nullTime(sql.NullTime{}))
	require.True(t, nullTime(sql.NullTime{Time: when, Valid: true}).Equal(when))
}

func TestBulkInsertSkipsExisting(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "race_info.db")
	sqldb, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL")
	require.NoError(t, err)
	bdb := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bdb.Close() })
	require.NoError(t, bundb.CreateTables(ctx, bdb))

	require.NoError(t, bulkInsert(ctx, bdb, []models.Race{}))

	name := "Bay 10k"
	require.NoError(t, bulkInsert(ctx, bdb, []models.Race{
		{RaceID: 101, Name: &name},
		{RaceID: 102},
	}))

	// A re-run overlaps the first batch; existing rows keep their values.
	renamed := "Renamed"
	require.NoError(t, bulkInsert(ctx, bdb, []models.Race{
		{RaceID: 101, Name: &renamed},
		{RaceID: 103},
	}))

	n, err := bdb.NewSelect().Model((*models.Race)(nil)).Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	var got models.Race
	require.NoError(t, bdb.NewSelect().Model(&got).Where(`"RaceId" = ?`, 101).Scan(ctx))
	require.Equal(t, "Bay 10k", *got.Name)
}
