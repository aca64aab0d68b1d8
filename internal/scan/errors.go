package scan

import "errors"

// Configuration errors. These are fatal and never retried.
var (
	// ErrNoFiles is returned when a batch entry point receives an empty file list.
	ErrNoFiles = errors.New("empty file list")

	// ErrNoVariables is returned when the required-variable list is empty.
	ErrNoVariables = errors.New("empty variable list")

	// ErrInvalidInput is returned when a component receives an input of the
	// wrong shape (nil dataset, mixed elevations, zenith data where slanted
	// data is required).
	ErrInvalidInput = errors.New("invalid input")

	// ErrSingularGeometry is returned when the beam geometry does not
	// provide enough independent directions to invert the coefficient matrix.
	ErrSingularGeometry = errors.New("singular beam geometry")
)

// Missing-prerequisite and data errors.
var (
	// ErrMissingVariable is returned when a required variable is absent.
	ErrMissingVariable = errors.New("missing variable")

	// ErrMissingSweep is returned by readers when a file has no readable
	// sweep group or time reference.
	ErrMissingSweep = errors.New("missing sweep")

	// ErrInsufficientData is returned when there is not enough data to
	// produce a meaningful result (fewer than 3 azimuths, an empty beam,
	// an all-missing resample, a run with no usable files).
	ErrInsufficientData = errors.New("insufficient data")
)
