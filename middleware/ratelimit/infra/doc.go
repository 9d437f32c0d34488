// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryWindowStore: janelas deslizantes por cliente, em memória, com LRU e janitor
//   - RedisWindowStore: as mesmas janelas num sorted set do Redis (várias réplicas)
//   - Memory/Redis/PrometheusStatsStore: estatísticas das decisões
//   - ChanPool: semáforo simples para limite de concorrência
package infra
