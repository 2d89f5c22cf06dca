package model

import "errors"

// Common errors used across the application
var (
	// Member errors
	ErrMemberNotFound = errors.New("member not found")
	ErrRSNNotFound    = errors.New("rsn not found")
	ErrAliasNotFound  = errors.New("alias not found")

	// Rank errors
	ErrRankNotFound = errors.New("rank not found")
	ErrRankExists   = errors.New("rank already exists")

	// Exemption errors
	ErrAlreadyExempt = errors.New("member already has an active exemption")

	// Sync errors
	ErrForceDryRun   = errors.New("force run cannot be combined with dry run")
	ErrRunInProgress = errors.New("a sync run is already in progress")

	// External service errors
	ErrExternalUnavailable = errors.New("external service unavailable")
	ErrPlayerNotTracked    = errors.New("player not tracked by external service")

	// Input errors
	ErrInvalidPoints = errors.New("points must be non-zero")
	ErrEmptyRSN      = errors.New("rsn must not be empty")
)
