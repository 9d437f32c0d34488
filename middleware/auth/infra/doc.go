// Package infra tem as implementações concretas dos colaboradores do
// authenticator: diretórios de identidade (memória, Postgres) e sinks de
// auditoria (log, Postgres, Prometheus, fan-out e assíncrono).
package infra
