// Package importer pulls webscorer registration feeds into the registry
// and mirrors the accepted rows into the database.
package importer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"raceinfo/db"
	"raceinfo/models"
	"raceinfo/registry"
	"raceinfo/webscorer"
)

// Report summarizes one race import, in the shape the old cron scripts
// printed.
type Report struct {
	RaceID    int    `json:"race_id"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Status    string `json:"race_status"`
	Error     string `json:"error,omitempty"`
}

func (r Report) fail(err error) Report {
	r.Status = "error"
	r.Error = err.Error()
	return r
}

type Importer struct {
	ws    *webscorer.Client
	reg   *registry.Registry
	store *db.Store
	log   *zap.Logger
}

// New builds an importer. store may be nil when running without a
// database; the registry is filled either way.
func New(ws *webscorer.Client, reg *registry.Registry, store *db.Store, log *zap.Logger) *Importer {
	return &Importer{ws: ws, reg: reg, store: store, log: log}
}

// ImportRace fetches one register list and upserts the race, its racers
// and their participations. The report carries per-row outcome counts.
func (imp *Importer) ImportRace(ctx context.Context, raceID int) Report {
	rep := Report{RaceID: raceID, Status: "ok"}

	rl, err := imp.ws.RegisterList(ctx, raceID)
	if err != nil {
		return rep.fail(err)
	}

	race, err := raceFromInfo(rl.RaceInfo)
	if err != nil {
		return rep.fail(err)
	}
	if race.RaceID == 0 {
		race.RaceID = raceID
	}
	rep.RaceID = race.RaceID

	race, _ = imp.reg.UpsertRace(race)
	if imp.store != nil {
		if err := imp.store.SaveRace(ctx, race); err != nil {
			return rep.fail(err)
		}
	}

	for _, e := range rl.StartList {
		racer, _ := imp.reg.UpsertRacer(racerFromEntry(e))
		if imp.store != nil {
			if err := imp.store.SaveRacer(ctx, racer); err != nil {
				return rep.fail(err)
			}
		}

		part := partFromEntry(e)
		part.RaceID = race.RaceID
		part.RacerID = racer.RacerID
		stored, out, err := imp.reg.UpsertParticipation(part)
		if err != nil {
			return rep.fail(err)
		}
		if imp.store != nil {
			if err := imp.store.SaveParticipation(ctx, stored); err != nil {
				return rep.fail(err)
			}
		}

		switch out {
		case registry.Created:
			rep.Added++
		case registry.Updated:
			rep.Updated++
		default:
			rep.Unchanged++
		}
	}

	imp.log.Info("imported race",
		zap.Int("raceID", rep.RaceID),
		zap.Int("added", rep.Added),
		zap.Int("updated", rep.Updated),
		zap.Int("unchanged", rep.Unchanged),
	)
	return rep
}

// ImportDay imports every race held on the given day. With parallel set,
// register lists are fetched a few at a time; failures stay per-race and
// land in that race's report.
func (imp *Importer) ImportDay(ctx context.Context, day time.Time, parallel bool) ([]Report, error) {
	lists, err := imp.ws.StartListsOn(ctx, day)
	if err != nil {
		return nil, err
	}
	imp.log.Info("found races",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("count", len(lists)),
	)

	for _, s := range lists {
		if err := imp.ensureRace(ctx, s); err != nil {
			return nil, err
		}
	}

	reports := make([]Report, len(lists))
	if !parallel {
		for i, s := range lists {
			reports[i] = imp.ImportRace(ctx, int(s.RaceID))
		}
		return reports, nil
	}

	g := new(errgroup.Group)
	g.SetLimit(4)
	for i, s := range lists {
		g.Go(func() error {
			reports[i] = imp.ImportRace(ctx, int(s.RaceID))
			return nil
		})
	}
	// Goroutines always return nil, failures live in the reports.
	_ = g.Wait()
	return reports, nil
}

// ensureRace records a race from the start list index before its register
// list is fetched. Like the old INSERT IGNORE, only new races land, with
// just the id, name and date known at this point.
func (imp *Importer) ensureRace(ctx context.Context, s webscorer.StartListSummary) error {
	if _, ok := imp.reg.GetRace(int(s.RaceID)); ok {
		return nil
	}
	race := models.Race{RaceID: int(s.RaceID)}
	name := s.Name
	race.Name = &name
	if s.Date != "" {
		d, err := webscorer.ParseDate(s.Date)
		if err != nil {
			return err
		}
		race.Date = &d
	}
	if _, err := imp.reg.CreateRace(race); err != nil {
		if errors.Is(err, registry.ErrDuplicateRaceID) {
			return nil
		}
		return err
	}
	if imp.store != nil {
		return imp.store.SaveRace(ctx, race)
	}
	return nil
}

// raceFromInfo maps the feed header onto a race row. The feed sends empty
// strings for unknown text fields and those are stored as-is; only absent
// date and start time become NULL.
func raceFromInfo(ri webscorer.RaceInfo) (models.Race, error) {
	name, city, typ := ri.Name, ri.City, ri.Type
	r := models.Race{
		RaceID: int(ri.RaceID),
		Name:   &name,
		City:   &city,
		Type:   &typ,
	}
	if ri.Date != "" {
		d, err := webscorer.ParseDate(ri.Date)
		if err != nil {
			return models.Race{}, err
		}
		r.Date = &d
	}
	if ri.StartTime != "" {
		ts, err := webscorer.ParseStartTime(ri.StartTime)
		if err != nil {
			return models.Race{}, err
		}
		r.StartTime = &ts
	}
	return r, nil
}

func racerFromEntry(e webscorer.Entry) models.Racer {
	return models.Racer{
		FirstName:   orEmpty(e.FirstName),
		LastName:    orEmpty(e.LastName),
		Email:       orEmpty(e.Email),
		Gender:      orEmpty(e.Gender),
		YearOfBirth: intPtr(e.YearOfBirth),
		Age:         intPtr(e.Age),
		TeamName:    orEmpty(e.TeamName),
	}
}

func partFromEntry(e webscorer.Entry) models.Participation {
	return models.Participation{
		Bib:      strPtr(e.Bib),
		ChipID:   strPtr(e.ChipID),
		Category: orEmpty(e.Category),
	}
}

// orEmpty applies the feed's convention for text fields: a missing key
// means empty string, which still counts as a value for identity matching.
func orEmpty(p *string) *string {
	if p == nil {
		empty := ""
		return &empty
	}
	return p
}

func intPtr(p *webscorer.FlexInt) *int {
	if p == nil {
		return nil
	}
	n := int(*p)
	return &n
}

func strPtr(p *webscorer.FlexString) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}
