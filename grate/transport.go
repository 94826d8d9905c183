package grate

import (
	"context"
	"net/http"
	"strings"

	"rategrate/grate/application"
	"rategrate/grate/domain"
)

type KeyFunc[K comparable] func(r *http.Request) K

// HeaderKeyFunc usa o valor do header da requisição de saída como chave (ex: o
// token de API) e cai para o host da URL quando o header está vazio.
func HeaderKeyFunc(header string) KeyFunc[string] {
	return func(r *http.Request) string {
		if header != "" {
			if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
				return v
			}
		}
		if r.URL != nil && r.URL.Host != "" {
			return r.URL.Host
		}
		if r.Host != "" {
			return r.Host
		}
		return "unknown"
	}
}

// Transport é um http.RoundTripper que passa cada requisição de saída pelo
// Grate: Wait com o contexto da requisição, RoundTrip, Release. A vaga é
// liberada quando o RoundTrip retorna (com resposta ou erro), antes do corpo
// ser lido.
type Transport[K comparable] struct {
	Base  http.RoundTripper
	Grate domain.Grate[K]
	KeyFn KeyFunc[K]
}

func (t *Transport[K]) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Grate == nil {
		return base.RoundTrip(req)
	}

	var key K
	if t.KeyFn != nil {
		key = t.KeyFn(req)
	}

	resp, err := application.WaitAndRun(req.Context(), t.Grate, key, func(context.Context) (*http.Response, error) {
		return base.RoundTrip(req)
	})
	if err != nil && resp != nil {
		// Release falhou depois de uma resposta válida: o corpo ainda é do chamador.
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, err
}
