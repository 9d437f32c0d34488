package domain

import (
	"context"
	"time"
)

// WindowLimit é um limite sobre uma janela deslizante: no máximo Max eventos
// nos últimos Window. Max <= 0 desliga a janela.
type WindowLimit struct {
	Window time.Duration
	Max    int
}

// WindowResult é o resultado de WindowStore.Admit.
//
// Counts[i] é a contagem observada na janela limits[i] antes de registrar o
// evento atual. Exceeded é o índice do primeiro limite estourado (-1 se nenhum).
type WindowResult struct {
	Allowed  bool
	Exceeded int
	Counts   []int
}

// WindowStore guarda os timestamps por chave.
//
// Admit é atômico por chave: descarta entradas mais antigas que a maior janela,
// conta cada janela e, se todas estiverem abaixo do limite, registra `at`.
// Quando bloqueia, nada é registrado.
//
// Uma entrada com timestamp exatamente igual a at-Window ainda conta;
// só o que for estritamente anterior é descartado.
type WindowStore interface {
	Admit(ctx context.Context, key Key, at time.Time, limits []WindowLimit) (WindowResult, error)
	Count(ctx context.Context, key Key, at time.Time, window time.Duration) (int, error)
}

// MaxWindow devolve a maior janela da lista (0 se vazia).
func MaxWindow(limits []WindowLimit) time.Duration {
	var max time.Duration
	for _, l := range limits {
		if l.Window > max {
			max = l.Window
		}
	}
	return max
}
