// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - QuotaTracker: pool de vagas com liberação atrasada por janela (timer, sem polling)
//   - KeyedQuotaTracker: um QuotaTracker por chave, criado sob demanda
//   - SystemClock: relógio real baseado em time.Now/time.AfterFunc
//   - stats: memória, Redis (go-redis) e Prometheus
package infra
