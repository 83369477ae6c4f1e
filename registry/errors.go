package registry

import "errors"

var (
	ErrRaceNotFound          = errors.New("registry: race not found")
	ErrRacerNotFound         = errors.New("registry: racer not found")
	ErrParticipationNotFound = errors.New("registry: participation not found")
	ErrDuplicateRaceID       = errors.New("registry: race id already in use")
	ErrDuplicateIdentity     = errors.New("registry: racer identity already in use")
	ErrAlreadyEnrolled       = errors.New("registry: racer already enrolled in race")
)
