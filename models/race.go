package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Race represents one timed event. RaceId is assigned by the caller (it is
// the registration provider's id), never generated.
type Race struct {
	bun.BaseModel `bun:"table:races,alias:ra"`

	RaceID    int        `bun:"RaceId,pk" json:"RaceId"`
	Name      *string    `bun:"Name" json:"Name,omitempty"`
	City      *string    `bun:"City" json:"City,omitempty"`
	Date      *string    `bun:"Date,type:date" json:"Date,omitempty"`
	StartTime *time.Time `bun:"StartTime" json:"StartTime,omitempty"`
	Type      *string    `bun:"Type" json:"Type,omitempty"`
}
