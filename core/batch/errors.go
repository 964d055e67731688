package batch

import "errors"

var (
	ErrJobNotFound   = errors.New("batch job not found")
	ErrJobNotPending = errors.New("batch job is not pending")
	ErrJobProcessing = errors.New("batch job is currently processing")
	ErrNoProcessor   = errors.New("no processor registered for batch type")
)
