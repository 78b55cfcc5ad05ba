package domain

import "errors"

var (
	ErrTargetNotFound = errors.New("target not found")
	ErrDuplicateURL   = errors.New("target url already registered")
)
