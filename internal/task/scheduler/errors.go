package scheduler

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid job configuration")
	ErrDuplicateJobName     = errors.New("duplicate job name")
	ErrJobNotFound          = errors.New("job not found")
	ErrJobBusy              = errors.New("job is running")
)
