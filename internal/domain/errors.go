package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidResultID       = errors.New("invalid owning result id")
	ErrInvalidPhoto          = errors.New("invalid reference photo")
	ErrInvalidCandidateCount = errors.New("invalid candidate count")
	ErrPromptUnavailable     = errors.New("prompt unavailable")
	ErrProviderFailure       = errors.New("provider failure")
	ErrStorageFailure        = errors.New("storage failure")
	ErrRunNotRunning         = errors.New("run is not running")
)
