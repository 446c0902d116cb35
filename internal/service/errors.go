package service

import "errors"

var (
	ErrNotFound       = errors.New("error not found")
	ErrDuplicateAsset = errors.New("error asset with this symbol already exists on the exchange")
	ErrClosed         = errors.New("error service is closed")
)
