package service

import "errors"

var (
	ErrQueryRequired     = errors.New("query is required")
	ErrInvalidMode       = errors.New("invalid run mode")
	ErrNodeRequired      = errors.New("node is required")
	ErrStartInProgress   = errors.New("a run is already starting")
	ErrServiceStopped    = errors.New("console service stopped")
	ErrUnknownAgentField = errors.New("unknown agent settings field")
	ErrArchiveDisabled   = errors.New("run archive is not configured")
	ErrRunNotFound       = errors.New("run not found")
)
