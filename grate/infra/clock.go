package infra

import (
	"time"

	"rategrate/grate/domain"
)

// SystemClock implementa domain.Clock com o relógio do processo.
// time.Now carrega a leitura monotônica, então deadlines não sofrem com ajustes
// de relógio de parede nem com overflow.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) domain.Timer {
	return time.AfterFunc(d, f)
}
