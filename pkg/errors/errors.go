package apperrors

import "errors"

// Standardized decision-pipeline errors
var (
	ErrMissingAccount    = errors.New("account missing for book")
	ErrMissingBook       = errors.New("book snapshot missing")
	ErrEmptyBook         = errors.New("book has no levels")
	ErrDegeneratePrice   = errors.New("non-positive price")
	ErrSessionHalted     = errors.New("session halted by kill-switch")
	ErrUnknownProfile    = errors.New("unknown strategy profile")
	ErrStoreCorrupt      = errors.New("state store corruption detected")
	ErrArchiverSaturated = errors.New("history archiver queue full")
)
