package models

import "github.com/uptrace/bun"

// Racer is a person, independent of any race. RacerId comes from the
// registry's sequence. The (FirstName, LastName, Email) triple is unique
// with SQL NULL semantics: rows missing any of the three never conflict.
type Racer struct {
	bun.BaseModel `bun:"table:racers,alias:r"`

	RacerID     int     `bun:"RacerId,pk,autoincrement" json:"RacerId"`
	FirstName   *string `bun:"FirstName,unique:racer_identity" json:"FirstName,omitempty"`
	LastName    *string `bun:"LastName,unique:racer_identity" json:"LastName,omitempty"`
	Email       *string `bun:"Email,unique:racer_identity" json:"Email,omitempty"`
	Gender      *string `bun:"Gender" json:"Gender,omitempty"`
	YearOfBirth *int    `bun:"YearOfBirth" json:"YearOfBirth,omitempty"`
	Age         *int    `bun:"Age" json:"Age,omitempty"`
	TeamName    *string `bun:"TeamName" json:"TeamName,omitempty"`
}
