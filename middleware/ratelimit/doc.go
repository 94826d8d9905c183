// Package ratelimit fornece as estratégias de limite do lado servidor usadas pelo
// servidor de testes (cmd/testserver) para comparar com o grate do lado cliente.
//
// Estratégias:
//
//   - Store: token bucket por cliente (golang.org/x/time/rate); com burst 1 e
//     rate.Every(d) vira "uma requisição a cada d por cliente"
//   - WindowStore: no máximo N requisições por janela por cliente, guardando a
//     lista de timestamps de cada cliente
//
// Middleware traduz a decisão para HTTP: 429 + Retry-After quando bloqueia.
// A chave do cliente vem de um header, do X-Forwarded-For ou do RemoteAddr.
package ratelimit
