// Package application contém os casos de uso sobre qualquer domain.Grate:
// adquirir uma vaga com timeout opcional e executar uma ação entre Wait e
// Release garantindo a liberação em todos os caminhos de saída.
//
// Ele depende apenas do pacote domain e não conhece net/http.
package application
