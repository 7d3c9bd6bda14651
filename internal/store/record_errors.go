package store

import "errors"

var (
	errShortRecord       = errors.New("record buffer too short")
	errUnknownRecordType = errors.New("unknown record type")
)
