// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (janela de login + janelas minuto/hora, acquire/timeout)
//   - infra: implementações concretas (janelas em memória/Redis, stats, semáforo)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (header/XFF/RemoteAddr) e vê se a rota é de login
//  2. Chama a camada application para obter a decisão
//  3. Se bloqueado, responde 429 com {"error": ..., "retryAfter": 3600}
//  4. Se permitido, chama o próximo handler (ex: autenticação e reverse proxy)
//
// A configuração vem de app.rate-limit.* (ver internal/config).
package ratelimit
