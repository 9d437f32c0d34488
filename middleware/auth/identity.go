package auth

import (
	"context"
	"errors"
)

// ErrIdentityNotFound é devolvido pelo IdentityLookup para subject desconhecido.
var ErrIdentityNotFound = errors.New("identity not found")

// Identity é a identidade autenticada de uma requisição; não é persistida.
type Identity struct {
	Username    string
	Authorities []string
}

// HasAuthority diz se a identidade tem o papel pedido.
func (i Identity) HasAuthority(authority string) bool {
	for _, a := range i.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// IdentityLookup resolve o subject do token para a identidade completa.
type IdentityLookup interface {
	LookupIdentity(ctx context.Context, subject string) (Identity, error)
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
