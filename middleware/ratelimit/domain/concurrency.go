package domain

import "context"

// SlotPool limita quantas requisições ficam em voo ao mesmo tempo no gateway.
//
// Acquire espera por uma vaga até o ctx encerrar. O release devolvido deve ser
// chamado exatamente uma vez; ok=false significa que nenhuma vaga foi tomada.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// InFlight é opcional: pools que sabem quantas vagas estão ocupadas.
type InFlight interface {
	InUse() int
	Capacity() int
}
