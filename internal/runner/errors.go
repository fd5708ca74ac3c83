package runner

import "errors"

// Ошибки runner'ов.
var (
	// ErrUnknownRunner — нет runner'а для данного типа шага.
	ErrUnknownRunner = errors.New("unknown runner type")

	// ErrHTTPRequest — HTTP-запрос завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")
)
