package domain

import "time"

// Clock é a fonte de tempo dos trackers.
//
// Now deve carregar a leitura monotônica do Go (time.Now faz isso); os
// deadlines são comparados com After/Sub, que usam essa leitura de 64 bits.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer é o handle de um AfterFunc agendado.
type Timer interface {
	Stop() bool
}
