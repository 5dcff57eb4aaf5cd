package collection

import "errors"

var (
	ErrCapacityExceeded = errors.New("collection is full")
	ErrNotFound         = errors.New("record not found")
	ErrNotReady         = errors.New("record has no decoded image")
	ErrNotConverted     = errors.New("record has no converted result")
	ErrInvalidFormat    = errors.New("invalid target format")
	ErrInvalidQuality   = errors.New("quality must be within [0,1]")
)
