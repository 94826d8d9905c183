package domain

import "errors"

var (
	// ErrInvalidConfig indica capacity <= 0 ou window <= 0 na construção.
	ErrInvalidConfig = errors.New("grate: invalid configuration")
	// ErrUnknownKey indica Release para uma chave que nunca passou por Wait/RegisterToken.
	ErrUnknownKey = errors.New("grate: unknown key")
	// ErrNotAcquired indica Release sem nenhuma vaga obtida e ainda não liberada.
	ErrNotAcquired = errors.New("grate: release without an acquired permit")
	// ErrDisposed indica uso depois de Close.
	ErrDisposed = errors.New("grate: tracker disposed")
)
