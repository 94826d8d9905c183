package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Limiter representa algo que pode decidir se uma ação é permitida agora.
// *rate.Limiter satisfaz esta interface.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP, token do cliente).
type LimiterStore interface {
	Get(key string) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

type KeyFunc func(r *http.Request) string

type Options struct {
	Store               LimiterStore
	Logger              *slog.Logger
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Decide consulta o limiter da chave. Sem store tudo passa.
func Decide(store LimiterStore, key string, retryAfter time.Duration) Decision {
	if store == nil {
		return Decision{Allowed: true}
	}
	if retryAfter <= 0 {
		retryAfter = 1 * time.Second
	}

	lim := store.Get(key)
	if lim == nil || lim.Allow() {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}
}

// Reject escreve a resposta de bloqueio com Retry-After em segundos
// (arredondado para cima, mínimo 1).
func Reject(w http.ResponseWriter, status int, dec Decision, msg string) {
	secs := int((dec.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", formatInt(secs))
	if msg == "" {
		msg = http.StatusText(status)
	}
	http.Error(w, msg, status)
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
				}
			}

			dec := Decide(opts.Store, key, opts.RetryAfter)
			if !dec.Allowed {
				opts.Logger.Debug("request rejected", "key", key, "method", r.Method, "path", r.URL.Path)
				Reject(w, opts.RejectStatus, dec, "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
