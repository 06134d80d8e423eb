package domain

import "errors"

var (
	// ErrInvalidTransition rejects an event that makes no sense against the
	// vehicle's current state, such as an exit while already off premises.
	// Not retryable; surfaced to the caller.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnknownVehicle means a detection's plate (or a manual command's
	// vehicle ID) resolved to no active vehicle. For detections this is
	// the trigger for the unregistered-entry alert, not a hard failure.
	ErrUnknownVehicle = errors.New("unknown vehicle")

	ErrUnknownZone   = errors.New("unknown zone")
	ErrUnknownSensor = errors.New("unknown sensor")
	ErrUnknownAlert  = errors.New("unknown alert")

	// ErrLowConfidence marks a detection below the configured confidence
	// minimum: logged and counted, never applied to state.
	ErrLowConfidence = errors.New("detection confidence below minimum")

	// ErrPersistence wraps transient storage failures. The operation's
	// effects are rolled back and the caller retries with the same input.
	ErrPersistence = errors.New("persistence failure")
)
