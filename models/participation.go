package models

import "github.com/uptrace/bun"

// Participation links one racer to one race. Bib and ChipId are free-form
// text and deliberately carry no uniqueness: the source timing sheets reuse
// both across entrants.
type Participation struct {
	bun.BaseModel `bun:"table:race_participants,alias:rp"`

	RaceID   int     `bun:"RaceId,pk" json:"RaceId"`
	RacerID  int     `bun:"RacerId,pk" json:"RacerId"`
	Bib      *string `bun:"Bib" json:"Bib,omitempty"`
	ChipID   *string `bun:"ChipId" json:"ChipId,omitempty"`
	Category *string `bun:"Category" json:"Category,omitempty"`
}
