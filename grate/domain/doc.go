// Package domain define contratos e tipos de domínio do controle de cota (grate).
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir que os trackers (infra) e os casos de uso (application)
// sejam testados de forma isolada, com relógio e stats injetáveis.
package domain
