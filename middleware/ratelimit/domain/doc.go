// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// As janelas deslizantes (minuto/hora por cliente, tentativas de login por hora)
// são descritas aqui como contratos; a contagem fica na camada infra.
package domain
