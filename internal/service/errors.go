package service

import (
	"errors"

	"media-tracker/internal/repository"
)

var (
	ErrListNotFound       = errors.New("list not found")
	ErrNotInList          = errors.New("media is not in the list")
	ErrProtectedList      = errors.New("default lists cannot be renamed or deleted")
	ErrInvalidRank        = errors.New("invalid rank")
	ErrInvalidListName    = errors.New("list name must not be blank")
	ErrInvalidMediaID     = errors.New("invalid media id")
	ErrUserExists         = errors.New("pseudo or email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidAccount     = errors.New("pseudo, email and password are required")
	ErrAccountNotFound    = errors.New("account not found")
)

// isLostRace reports a duplicate insert, which means a concurrent writer
// already produced the row this call wanted.
func isLostRace(err error) bool {
	return errors.Is(err, repository.ErrDuplicateKey) || errors.Is(err, repository.ErrDuplicateAssociation)
}
