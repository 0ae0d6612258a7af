package domain

import "errors"

var (
	ErrEmptyText         = errors.New("message text is empty")
	ErrEmptySender       = errors.New("message sender is empty")
	ErrRateLimited       = errors.New("submission rate limit exceeded")
	ErrBusClosed         = errors.New("bus is stopped")
	ErrBrokerUnavailable = errors.New("broker unavailable")
)
