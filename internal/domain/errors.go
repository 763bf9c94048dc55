package domain

import "errors"

// Единая таксономия ошибок ядра. Gateway мапит их в HTTP-статусы,
// чтобы внешним коллабораторам было все равно, какой слой упал
var (
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrNotFound          = errors.New("request not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnauthorizedRole  = errors.New("reviewer role does not match assignment")

	// ErrConflict — проигрыш в гонке двух одновременных решений по одной заявке.
	// Отличаем от InvalidTransition: клиенту нужно перечитать и решить заново
	ErrConflict = errors.New("concurrent decision conflict")

	// ErrDispatchFailed — транзиентная ошибка доставки уведомления.
	// Ретраится внутри диспетчера и никогда не всплывает из успешного Decide
	ErrDispatchFailed = errors.New("notification dispatch failed")
)
