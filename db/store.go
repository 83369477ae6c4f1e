package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"raceinfo/models"
)

// Store mirrors registry state into the database. Callers write here only
// after the registry has accepted the change, so every statement is a
// plain upsert or delete with no integrity decisions of its own.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) SaveRace(ctx context.Context, r models.Race) error {
	_, err := s.db.NewInsert().Model(&r).
		On(`CONFLICT ("RaceId") DO UPDATE`).
		Set(`"Name" = EXCLUDED."Name", "City" = EXCLUDED."City", "Date" = EXCLUDED."Date", "StartTime" = EXCLUDED."StartTime", "Type" = EXCLUDED."Type"`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save race %d: %w", r.RaceID, err)
	}
	return nil
}

func (s *Store) SaveRacer(ctx context.Context, r models.Racer) error {
	_, err := s.db.NewInsert().Model(&r).
		On(`CONFLICT ("RacerId") DO UPDATE`).
		Set(`"FirstName" = EXCLUDED."FirstName", "LastName" = EXCLUDED."LastName", "Email" = EXCLUDED."Email", "Gender" = EXCLUDED."Gender", "YearOfBirth" = EXCLUDED."YearOfBirth", "Age" = EXCLUDED."Age", "TeamName" = EXCLUDED."TeamName"`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save racer %d: %w", r.RacerID, err)
	}
	return nil
}

func (s *Store) SaveParticipation(ctx context.Context, p models.Participation) error {
	_, err := s.db.NewInsert().Model(&p).
		On(`CONFLICT ("RaceId", "RacerId") DO UPDATE`).
		Set(`"Bib" = EXCLUDED."Bib", "ChipId" = EXCLUDED."ChipId", "Category" = EXCLUDED."Category"`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save participation race %d racer %d: %w", p.RaceID, p.RacerID, err)
	}
	return nil
}

// DeleteRace removes a race and its participations in one transaction. The
// dependent rows are deleted explicitly rather than trusting the driver's
// cascade settings.
func (s *Store) DeleteRace(ctx context.Context, raceID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete race %d: %w", raceID, err)
	}
	defer tx.Rollback()

	if _, err := tx.NewDelete().Model((*models.Participation)(nil)).Where(`"RaceId" = ?`, raceID).Exec(ctx); err != nil {
		return fmt.Errorf("delete race %d participations: %w", raceID, err)
	}
	if _, err := tx.NewDelete().Model((*models.Race)(nil)).Where(`"RaceId" = ?`, raceID).Exec(ctx); err != nil {
		return fmt.Errorf("delete race %d: %w", raceID, err)
	}
	return tx.Commit()
}

// DeleteRacer removes a racer and their participations in one transaction.
func (s *Store) DeleteRacer(ctx context.Context, racerID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete racer %d: %w", racerID, err)
	}
	defer tx.Rollback()

	if _, err := tx.NewDelete().Model((*models.Participation)(nil)).Where(`"RacerId" = ?`, racerID).Exec(ctx); err != nil {
		return fmt.Errorf("delete racer %d participations: %w", racerID, err)
	}
	if _, err := tx.NewDelete().Model((*models.Racer)(nil)).Where(`"RacerId" = ?`, racerID).Exec(ctx); err != nil {
		return fmt.Errorf("delete racer %d: %w", racerID, err)
	}
	return tx.Commit()
}

func (s *Store) DeleteParticipation(ctx context.Context, raceID, racerID int) error {
	_, err := s.db.NewDelete().Model((*models.Participation)(nil)).
		Where(`"RaceId" = ?`, raceID).
		Where(`"RacerId" = ?`, racerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete participation race %d racer %d: %w", raceID, racerID, err)
	}
	return nil
}

// Load reads the whole database, in key order, for seeding the registry at
// startup.
func (s *Store) Load(ctx context.Context) ([]models.Race, []models.Racer, []models.Participation, error) {
	var races []models.Race
	if err := s.db.NewSelect().Model(&races).Order("RaceId").Scan(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("load races: %w", err)
	}
	var racers []models.Racer
	if err := s.db.NewSelect().Model(&racers).Order("RacerId").Scan(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("load racers: %w", err)
	}
	var parts []models.Participation
	if err := s.db.NewSelect().Model(&parts).Order("RaceId").Order("RacerId").Scan(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("load participations: %w", err)
	}
	return races, racers, parts, nil
}

// ChipRow is a flat scan target for the chip lookup join, shaped like the
// legacy reporting query.
type ChipRow struct {
	RaceID    int     `bun:"RaceId" json:"RaceId"`
	RacerID   int     `bun:"RacerId" json:"RacerId"`
	FirstName *string `bun:"FirstName" json:"FirstName"`
	LastName  *string `bun:"LastName" json:"LastName"`
	Bib       *string `bun:"Bib" json:"Bib"`
	ChipID    *string `bun:"ChipId" json:"ChipId"`
	Category  *string `bun:"Category" json:"Category"`
	RaceName  *string `bun:"RaceName" json:"RaceName"`
	RaceDate  *string `bun:"RaceDate" json:"RaceDate"`
}

const chipJoinSQL = `
SELECT
	rp."RaceId", rp."RacerId", rp."Bib", rp."ChipId", rp."Category",
	r."FirstName", r."LastName",
	ra."Name" AS "RaceName", ra."Date" AS "RaceDate"
FROM race_participants rp
INNER JOIN racers r  ON r."RacerId" = rp."RacerId"
INNER JOIN races  ra ON ra."RaceId" = rp."RaceId"
`

// LookupChip finds every participation carrying the given chip.
func (s *Store) LookupChip(ctx context.Context, chipID string) ([]ChipRow, error) {
	var rows []ChipRow
	q := chipJoinSQL + `WHERE rp."ChipId" = ? ORDER BY rp."RaceId", rp."RacerId"`
	if err := s.db.NewRaw(q, chipID).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("lookup chip %s: %w", chipID, err)
	}
	return rows, nil
}
