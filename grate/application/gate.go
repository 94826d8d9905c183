package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"rategrate/grate/domain"
)

// Gate concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
//
// Gate também é um domain.Grate, então pode ser passado para WaitAndRun ou
// para grate.Transport no lugar do tracker.
type Gate[K comparable] struct {
	Grate          domain.Grate[K]
	AcquireTimeout time.Duration
}

// Wait espera uma vaga.
//   - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
//   - Se `AcquireTimeout > 0`, espera até o timeout.
//
// Sem Grate tudo passa.
func (g Gate[K]) Wait(ctx context.Context, key K) error {
	if g.Grate == nil {
		return nil
	}
	if g.AcquireTimeout <= 0 {
		return g.Grate.Wait(ctx, key)
	}

	acqCtx, cancel := context.WithTimeout(ctx, g.AcquireTimeout)
	defer cancel()
	return g.Grate.Wait(acqCtx, key)
}

func (g Gate[K]) Release(key K) error {
	if g.Grate == nil {
		return nil
	}
	return g.Grate.Release(key)
}

// Acquire tenta adquirir uma vaga para key.
// Retorna (release, err). Se err != nil, nenhuma vaga foi adquirida.
// release pode ser chamada mais de uma vez; só a primeira chega ao Grate.
func (g Gate[K]) Acquire(ctx context.Context, key K) (func() error, error) {
	if err := g.Wait(ctx, key); err != nil {
		return nil, err
	}

	var (
		once sync.Once
		err  error
	)
	release := func() error {
		once.Do(func() { err = g.Release(key) })
		return err
	}
	return release, nil
}

// Run executa action entre Wait e Release. Veja WaitAndRun.
func (g Gate[K]) Run(ctx context.Context, key K, action func(context.Context) error) error {
	_, err := WaitAndRun[K](ctx, g, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, action(ctx)
	})
	return err
}

// WaitAndRun espera uma vaga, executa action e libera a vaga em qualquer saída
// de action: retorno normal, erro, panic ou ctx cancelado. O resultado de
// action é repassado; uma falha de Release é somada ao erro de action.
func WaitAndRun[K comparable, T any](ctx context.Context, g domain.Grate[K], key K, action func(context.Context) (T, error)) (result T, err error) {
	if err := g.Wait(ctx, key); err != nil {
		return result, err
	}
	defer func() {
		if rerr := g.Release(key); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	return action(ctx)
}
