package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

type Key string

// Reason indica qual limite barrou a requisição.
type Reason string

const (
	ReasonNone   Reason = ""
	ReasonMinute Reason = "minute"
	ReasonHour   Reason = "hour"
	ReasonLogin  Reason = "login"
)

// Request é a entrada de uma checagem: quem, se é rota de login e quando.
type Request struct {
	Key       Key
	LoginPath bool
	At        time.Time
}

type Decision struct {
	Allowed bool
	Reason  Reason
	// Message é a mensagem fixa devolvida ao cliente quando bloqueado.
	Message string
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
