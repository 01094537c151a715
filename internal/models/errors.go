package models

import "errors"

// Storage outcomes shared by the storage adapters and their callers.
var (
	ErrNotFound           = errors.New("object not found")
	ErrPreconditionFailed = errors.New("object generation precondition failed")
)
