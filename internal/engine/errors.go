package engine

import "github.com/rotisserie/eris"

// Sentinel errors callers can test with errors.Is. Everything else the
// engine returns is an eris-wrapped failure from the store or a model.
var (
	// ErrInvalidArgument signals a caller mistake: empty journey id,
	// unknown model kind, nil input where one is required.
	ErrInvalidArgument = eris.New("invalid argument")

	// ErrJourneyNotFound is returned by single-journey calculation when the
	// id does not exist in the store.
	ErrJourneyNotFound = eris.New("journey not found")

	// ErrRunnerDisabled is returned by the batch runner when batch
	// attribution is switched off in configuration.
	ErrRunnerDisabled = eris.New("batch attribution disabled")

	// ErrEmergencyStop is returned when the operator kill switch is set.
	ErrEmergencyStop = eris.New("emergency stop engaged")
)
