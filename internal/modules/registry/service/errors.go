package service

import "errors"

var (
	// ErrValidation — в условии нет даже symbol/timeframe. Всё остальное
	// добиваем дефолтами, чтобы максимизировать дедупликацию.
	ErrValidation = errors.New("condition validation failed")

	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateSubscription — активная подписка на эту пару
	// (condition, subscriber) уже есть.
	ErrDuplicateSubscription = errors.New("duplicate subscription")
)
