package domain

import (
	"context"
	"fmt"
	"time"
)

// Grate é a capacidade exposta a quem chama: obter uma vaga antes de executar
// uma operação e devolvê-la depois.
//
// A semântica é: Wait bloqueia até existir vaga para a chave (ou até o ctx
// encerrar). Release marca o início da janela de resfriamento da vaga; ela só
// volta ao pool depois de Window. Release nunca bloqueia.
//
// O caso sem chave é o caso com chave com uma única chave implícita (NoKey).
type Grate[K comparable] interface {
	Wait(ctx context.Context, key K) error
	Release(key K) error
}

// NoKey é a chave implícita de um pool único.
type NoKey struct{}

// Config é imutável depois da construção do tracker.
type Config struct {
	// Capacity é o máximo de vagas em uso (em voo ou em resfriamento) ao mesmo tempo.
	Capacity int `yaml:"capacity"`
	// Window é quanto tempo uma vaga liberada fica indisponível.
	Window time.Duration `yaml:"window"`
}

func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be > 0, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0, got %s", ErrInvalidConfig, c.Window)
	}
	return nil
}

// Snapshot é uma leitura consistente do estado de um tracker.
//
// Fora de um Wait/Release/reap em andamento vale:
// Available + InFlight + Pending == Capacity.
type Snapshot struct {
	Capacity  int
	Available int
	InFlight  int
	Pending   int
	Armed     bool
	// NextExpiry é o deadline da cabeça da fila; zero quando não há pendências.
	NextExpiry time.Time
}
