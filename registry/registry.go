// Package registry keeps the authoritative in-memory picture of races,
// racers and participations, and enforces every integrity rule on it.
// Database writes happen only after the registry has accepted a change,
// so the store can never hold a state the registry would reject.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"raceinfo/models"
)

// Outcome reports what an upsert did with its row.
type Outcome int

const (
	Created Outcome = iota
	Updated
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// partKey identifies one participation: a racer is enrolled in a race at
// most once.
type partKey struct {
	raceID  int
	racerID int
}

// identity is the full (FirstName, LastName, Email) triple. Racers missing
// any of the three never take part in duplicate detection, mirroring SQL
// NULL semantics on the unique index.
type identity struct {
	first, last, email string
}

func identityOf(r models.Racer) (identity, bool) {
	if r.FirstName == nil || r.LastName == nil || r.Email == nil {
		return identity{}, false
	}
	return identity{*r.FirstName, *r.LastName, *r.Email}, true
}

// Entrant pairs a participation with the racer behind it.
type Entrant struct {
	models.Participation
	Racer models.Racer `json:"Racer"`
}

// ChipSighting is one chip's appearance in one race.
type ChipSighting struct {
	models.Participation
	Racer models.Racer `json:"Racer"`
	Race  models.Race  `json:"Race"`
}

// Registry is safe for concurrent use: reads run in parallel, mutations
// are serialized and apply either completely or not at all.
type Registry struct {
	mu     sync.RWMutex
	races  map[int]models.Race
	racers map[int]models.Racer
	parts  map[partKey]models.Participation

	byRace  map[int]map[int]struct{}
	byRacer map[int]map[int]struct{}
	ident   map[identity]int
	nextID  int
}

func New() *Registry {
	return &Registry{
		races:   make(map[int]models.Race),
		racers:  make(map[int]models.Racer),
		parts:   make(map[partKey]models.Participation),
		byRace:  make(map[int]map[int]struct{}),
		byRacer: make(map[int]map[int]struct{}),
		ident:   make(map[identity]int),
		nextID:  1,
	}
}

// CreateRace registers a race under its caller-assigned id.
func (g *Registry) CreateRace(r models.Race) (models.Race, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.races[r.RaceID]; ok {
		return models.Race{}, fmt.Errorf("race %d: %w", r.RaceID, ErrDuplicateRaceID)
	}
	r = cloneRace(r)
	g.races[r.RaceID] = r
	g.byRace[r.RaceID] = make(map[int]struct{})
	return cloneRace(r), nil
}

// CreateRacer stores a racer and assigns the next RacerId. Any id on the
// input is ignored.
func (g *Registry) CreateRacer(r models.Racer) (models.Racer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, full := identityOf(r)
	if full {
		if other, ok := g.ident[id]; ok {
			return models.Racer{}, fmt.Errorf("racer %d: %w", other, ErrDuplicateIdentity)
		}
	}
	r = cloneRacer(r)
	r.RacerID = g.nextID
	g.nextID++
	g.racers[r.RacerID] = r
	g.byRacer[r.RacerID] = make(map[int]struct{})
	if full {
		g.ident[id] = r.RacerID
	}
	return cloneRacer(r), nil
}

// EnrollParticipant adds a racer to a race. Both sides must already exist
// and the pair must not be enrolled yet.
func (g *Registry) EnrollParticipant(p models.Participation) (models.Participation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.races[p.RaceID]; !ok {
		return models.Participation{}, fmt.Errorf("race %d: %w", p.RaceID, ErrRaceNotFound)
	}
	if _, ok := g.racers[p.RacerID]; !ok {
		return models.Participation{}, fmt.Errorf("racer %d: %w", p.RacerID, ErrRacerNotFound)
	}
	k := partKey{p.RaceID, p.RacerID}
	if _, ok := g.parts[k]; ok {
		return models.Participation{}, fmt.Errorf("race %d racer %d: %w", p.RaceID, p.RacerID, ErrAlreadyEnrolled)
	}
	p = clonePart(p)
	g.parts[k] = p
	g.byRace[p.RaceID][p.RacerID] = struct{}{}
	g.byRacer[p.RacerID][p.RaceID] = struct{}{}
	return clonePart(p), nil
}

// UpdateParticipant patches an existing participation: non-nil fields
// replace the stored values, nil fields stay as they are. The (race,
// racer) pair itself cannot change.
func (g *Registry) UpdateParticipant(p models.Participation) (models.Participation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := partKey{p.RaceID, p.RacerID}
	cur, ok := g.parts[k]
	if !ok {
		return models.Participation{}, fmt.Errorf("race %d racer %d: %w", p.RaceID, p.RacerID, ErrParticipationNotFound)
	}
	if p.Bib != nil {
		cur.Bib = clonePtr(p.Bib)
	}
	if p.ChipID != nil {
		cur.ChipID = clonePtr(p.ChipID)
	}
	if p.Category != nil {
		cur.Category = clonePtr(p.Category)
	}
	g.parts[k] = cur
	return clonePart(cur), nil
}

// DeleteRace removes a race and every participation in it.
func (g *Registry) DeleteRace(raceID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.races[raceID]; !ok {
		return fmt.Errorf("race %d: %w", raceID, ErrRaceNotFound)
	}
	for racerID := range g.byRace[raceID] {
		delete(g.parts, partKey{raceID, racerID})
		delete(g.byRacer[racerID], raceID)
	}
	delete(g.byRace, raceID)
	delete(g.races, raceID)
	return nil
}

// DeleteRacer removes a racer and every participation of theirs.
func (g *Registry) DeleteRacer(racerID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.racers[racerID]
	if !ok {
		return fmt.Errorf("racer %d: %w", racerID, ErrRacerNotFound)
	}
	for raceID := range g.byRacer[racerID] {
		delete(g.parts, partKey{raceID, racerID})
		delete(g.byRace[raceID], racerID)
	}
	delete(g.byRacer, racerID)
	if id, full := identityOf(r); full && g.ident[id] == racerID {
		delete(g.ident, id)
	}
	delete(g.racers, racerID)
	return nil
}

// DeleteParticipant withdraws one racer from one race.
func (g *Registry) DeleteParticipant(raceID, racerID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := partKey{raceID, racerID}
	if _, ok := g.parts[k]; !ok {
		return fmt.Errorf("race %d racer %d: %w", raceID, racerID, ErrParticipationNotFound)
	}
	delete(g.parts, k)
	delete(g.byRace[raceID], racerID)
	delete(g.byRacer[racerID], raceID)
	return nil
}

func (g *Registry) GetRace(raceID int) (models.Race, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r, ok := g.races[raceID]
	if !ok {
		return models.Race{}, false
	}
	return cloneRace(r), true
}

func (g *Registry) GetRacer(racerID int) (models.Racer, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r, ok := g.racers[racerID]
	if !ok {
		return models.Racer{}, false
	}
	return cloneRacer(r), true
}

func (g *Registry) GetParticipation(raceID, racerID int) (models.Participation, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p, ok := g.parts[partKey{raceID, racerID}]
	if !ok {
		return models.Participation{}, false
	}
	return clonePart(p), true
}

// ListRaces returns every race ordered by RaceId.
func (g *Registry) ListRaces() []models.Race {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]models.Race, 0, len(g.races))
	for _, r := range g.races {
		out = append(out, cloneRace(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RaceID < out[j].RaceID })
	return out
}

// ListRacers returns every racer ordered by RacerId.
func (g *Registry) ListRacers() []models.Racer {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]models.Racer, 0, len(g.racers))
	for _, r := range g.racers {
		out = append(out, cloneRacer(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RacerID < out[j].RacerID })
	return out
}

// ListParticipants returns a race's field with racer details, ordered by
// RacerId. The slice is a snapshot: later mutations do not touch it.
func (g *Registry) ListParticipants(raceID int) ([]Entrant, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.races[raceID]; !ok {
		return nil, fmt.Errorf("race %d: %w", raceID, ErrRaceNotFound)
	}
	out := make([]Entrant, 0, len(g.byRace[raceID]))
	for racerID := range g.byRace[raceID] {
		p := g.parts[partKey{raceID, racerID}]
		out = append(out, Entrant{
			Participation: clonePart(p),
			Racer:         cloneRacer(g.racers[racerID]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RacerID < out[j].RacerID })
	return out, nil
}

// LookupChip finds every participation carrying the given chip, across all
// races. Chips get reused between events, so multiple hits are normal.
func (g *Registry) LookupChip(chipID string) []ChipSighting {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]ChipSighting, 0)
	for k, p := range g.parts {
		if p.ChipID == nil || *p.ChipID != chipID {
			continue
		}
		out = append(out, ChipSighting{
			Participation: clonePart(p),
			Racer:         cloneRacer(g.racers[k.racerID]),
			Race:          cloneRace(g.races[k.raceID]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RaceID != out[j].RaceID {
			return out[i].RaceID < out[j].RaceID
		}
		return out[i].RacerID < out[j].RacerID
	})
	return out
}

// UpsertRace creates the race or refreshes its attributes in place.
func (g *Registry) UpsertRace(r models.Race) (models.Race, Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	old, ok := g.races[r.RaceID]
	if !ok {
		r = cloneRace(r)
		g.races[r.RaceID] = r
		g.byRace[r.RaceID] = make(map[int]struct{})
		return cloneRace(r), Created
	}
	if sameRace(old, r) {
		return cloneRace(old), Unchanged
	}
	r = cloneRace(r)
	g.races[r.RaceID] = r
	return cloneRace(r), Updated
}

// UpsertRacer resolves a racer by their full identity triple, refreshing
// the remaining attributes on a hit. Without a complete triple there is
// nothing to match on, so a new racer is created every time, exactly as a
// NULL-tolerant unique index would behave.
func (g *Registry) UpsertRacer(r models.Racer) (models.Racer, Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, full := identityOf(r); full {
		if racerID, ok := g.ident[id]; ok {
			old := g.racers[racerID]
			r = cloneRacer(r)
			r.RacerID = racerID
			if sameRacer(old, r) {
				return cloneRacer(old), Unchanged
			}
			g.racers[racerID] = r
			return cloneRacer(r), Updated
		}
	}
	r = cloneRacer(r)
	r.RacerID = g.nextID
	g.nextID++
	g.racers[r.RacerID] = r
	g.byRacer[r.RacerID] = make(map[int]struct{})
	if id, full := identityOf(r); full {
		g.ident[id] = r.RacerID
	}
	return cloneRacer(r), Created
}

// UpsertParticipation enrolls the pair or refreshes the existing entry.
func (g *Registry) UpsertParticipation(p models.Participation) (models.Participation, Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.races[p.RaceID]; !ok {
		return models.Participation{}, Unchanged, fmt.Errorf("race %d: %w", p.RaceID, ErrRaceNotFound)
	}
	if _, ok := g.racers[p.RacerID]; !ok {
		return models.Participation{}, Unchanged, fmt.Errorf("racer %d: %w", p.RacerID, ErrRacerNotFound)
	}
	k := partKey{p.RaceID, p.RacerID}
	old, ok := g.parts[k]
	if !ok {
		p = clonePart(p)
		g.parts[k] = p
		g.byRace[p.RaceID][p.RacerID] = struct{}{}
		g.byRacer[p.RacerID][p.RaceID] = struct{}{}
		return clonePart(p), Created, nil
	}
	if samePart(old, p) {
		return clonePart(old), Unchanged, nil
	}
	p = clonePart(p)
	g.parts[k] = p
	return clonePart(p), Updated, nil
}

// Snapshot copies out the full state, each slice in key order.
func (g *Registry) Snapshot() ([]models.Race, []models.Racer, []models.Participation) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	races := make([]models.Race, 0, len(g.races))
	for _, r := range g.races {
		races = append(races, cloneRace(r))
	}
	sort.Slice(races, func(i, j int) bool { return races[i].RaceID < races[j].RaceID })

	racers := make([]models.Racer, 0, len(g.racers))
	for _, r := range g.racers {
		racers = append(racers, cloneRacer(r))
	}
	sort.Slice(racers, func(i, j int) bool { return racers[i].RacerID < racers[j].RacerID })

	parts := make([]models.Participation, 0, len(g.parts))
	for _, p := range g.parts {
		parts = append(parts, clonePart(p))
	}
	sort.Slice(parts, func(i, j int) bool {
		if parts[i].RaceID != parts[j].RaceID {
			return parts[i].RaceID < parts[j].RaceID
		}
		return parts[i].RacerID < parts[j].RacerID
	})
	return races, racers, parts
}

// Restore replaces the registry's state with rows loaded from the store.
// The input is validated as a whole; on any violation the registry keeps
// its previous state.
func (g *Registry) Restore(races []models.Race, racers []models.Racer, parts []models.Participation) error {
	nraces := make(map[int]models.Race, len(races))
	nbyRace := make(map[int]map[int]struct{}, len(races))
	for _, r := range races {
		if _, ok := nraces[r.RaceID]; ok {
			return fmt.Errorf("restore race %d: %w", r.RaceID, ErrDuplicateRaceID)
		}
		nraces[r.RaceID] = cloneRace(r)
		nbyRace[r.RaceID] = make(map[int]struct{})
	}

	nracers := make(map[int]models.Racer, len(racers))
	nbyRacer := make(map[int]map[int]struct{}, len(racers))
	nident := make(map[identity]int, len(racers))
	nextID := 1
	for _, r := range racers {
		if _, ok := nracers[r.RacerID]; ok {
			return fmt.Errorf("restore racer %d: duplicate racer id", r.RacerID)
		}
		if id, full := identityOf(r); full {
			if other, ok := nident[id]; ok {
				return fmt.Errorf("restore racer %d vs %d: %w", r.RacerID, other, ErrDuplicateIdentity)
			}
			nident[id] = r.RacerID
		}
		nracers[r.RacerID] = cloneRacer(r)
		nbyRacer[r.RacerID] = make(map[int]struct{})
		if r.RacerID >= nextID {
			nextID = r.RacerID + 1
		}
	}

	nparts := make(map[partKey]models.Participation, len(parts))
	for _, p := range parts {
		if _, ok := nraces[p.RaceID]; !ok {
			return fmt.Errorf("restore participation race %d racer %d: %w", p.RaceID, p.RacerID, ErrRaceNotFound)
		}
		if _, ok := nracers[p.RacerID]; !ok {
			return fmt.Errorf("restore participation race %d racer %d: %w", p.RaceID, p.RacerID, ErrRacerNotFound)
		}
		k := partKey{p.RaceID, p.RacerID}
		if _, ok := nparts[k]; ok {
			return fmt.Errorf("restore participation race %d racer %d: %w", p.RaceID, p.RacerID, ErrAlreadyEnrolled)
		}
		nparts[k] = clonePart(p)
		nbyRace[p.RaceID][p.RacerID] = struct{}{}
		nbyRacer[p.RacerID][p.RaceID] = struct{}{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.races = nraces
	g.racers = nracers
	g.parts = nparts
	g.byRace = nbyRace
	g.byRacer = nbyRacer
	g.ident = nident
	g.nextID = nextID
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneRace(r models.Race) models.Race {
	r.Name = clonePtr(r.Name)
	r.City = clonePtr(r.City)
	r.Date = clonePtr(r.Date)
	r.StartTime = clonePtr(r.StartTime)
	r.Type = clonePtr(r.Type)
	return r
}

func cloneRacer(r models.Racer) models.Racer {
	r.FirstName = clonePtr(r.FirstName)
	r.LastName = clonePtr(r.LastName)
	r.Email = clonePtr(r.Email)
	r.Gender = clonePtr(r.Gender)
	r.YearOfBirth = clonePtr(r.YearOfBirth)
	r.Age = clonePtr(r.Age)
	r.TeamName = clonePtr(r.TeamName)
	return r
}

func clonePart(p models.Participation) models.Participation {
	p.Bib = clonePtr(p.Bib)
	p.ChipID = clonePtr(p.ChipID)
	p.Category = clonePtr(p.Category)
	return p
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameRace(a, b models.Race) bool {
	return eqPtr(a.Name, b.Name) &&
		eqPtr(a.City, b.City) &&
		eqPtr(a.Date, b.Date) &&
		eqTime(a.StartTime, b.StartTime) &&
		eqPtr(a.Type, b.Type)
}

func sameRacer(a, b models.Racer) bool {
	return eqPtr(a.FirstName, b.FirstName) &&
		eqPtr(a.LastName, b.LastName) &&
		eqPtr(a.Email, b.Email) &&
		eqPtr(a.Gender, b.Gender) &&
		eqPtr(a.YearOfBirth, b.YearOfBirth) &&
		eqPtr(a.Age, b.Age) &&
		eqPtr(a.TeamName, b.TeamName)
}

func samePart(a, b models.Participation) bool {
	return eqPtr(a.Bib, b.Bib) &&
		eqPtr(a.ChipID, b.ChipID) &&
		eqPtr(a.Category, b.Category)
}
