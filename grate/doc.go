// Package grate limita as operações que o próprio processo faz contra uma API
// com cota (ex: N chamadas por janela por token), bloqueando em vez de rejeitar.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (Grate, Config, Clock, erros, stats)
//   - infra: QuotaTracker (pool único), KeyedQuotaTracker (um pool por chave), stats
//   - application: Gate (timeout de aquisição) e WaitAndRun (liberação garantida)
//   - grate (este pacote): construtores e Transport (http.RoundTripper)
//
// Fluxo:
//
//  1. Wait(key) bloqueia até existir vaga para a chave
//  2. quem chamou faz a operação
//  3. Release(key) põe a vaga em resfriamento por Window
//  4. um timer dispara no primeiro vencimento e devolve as vagas vencidas
//
// Não há polling: cada tracker tem no máximo um timer, armado para o deadline
// mais antigo da fila.
package grate
