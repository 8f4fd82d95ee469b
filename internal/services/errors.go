package services

import "errors"

var (
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrProvider              = errors.New("provider call failed")
	ErrUnknownProvider       = errors.New("unknown provider")
	ErrCapabilityUnavailable = errors.New("capability not configured")
	ErrTranscription         = errors.New("transcription failed")
	ErrSynthesis             = errors.New("speech synthesis failed")
	ErrAnalysis              = errors.New("image analysis failed")
	ErrPersistence           = errors.New("persistence failed")

	ErrUserNotFound      = errors.New("user not found")
	ErrDraftNotFound     = errors.New("draft trip not found")
	ErrTripNotFound      = errors.New("trip not found")
	ErrRecordingNotFound = errors.New("recording not found")
	ErrInvalidTransition = errors.New("draft trip is no longer pending")
	ErrInvalidStatus     = errors.New("invalid draft status")
	ErrInvalidIntent     = errors.New("invalid trip intent")
	ErrUnknownFunction   = errors.New("unknown function call")
)
