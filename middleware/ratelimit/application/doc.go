// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, req) avalia primeiro a janela de login (se for rota
// de login) e depois as janelas gerais de minuto e hora do cliente.
package application
