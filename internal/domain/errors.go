package domain

import "errors"

var (
	ErrMissingColumn       = errors.New("missing required column")
	ErrMissingField        = errors.New("missing required field")
	ErrMalformedImageList  = errors.New("malformed image url list")
	ErrDuplicateFilename   = errors.New("duplicate destination filename")
	ErrUnexpectedStatus    = errors.New("unexpected status code")
	ErrStagingInconsistent = errors.New("staged file missing after successful fetch")
	ErrNoTargetFolder      = errors.New("target folder is required")
)
