package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"courier-gateway/middleware/auth"
)

// MemoryDirectory é um IdentityLookup em mapa, para o example-server e testes.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]auth.Identity
}

var _ auth.IdentityLookup = (*MemoryDirectory)(nil)

func NewMemoryDirectory(ids ...auth.Identity) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]auth.Identity, len(ids))}
	for _, id := range ids {
		d.Put(id)
	}
	return d
}

func (d *MemoryDirectory) Put(id auth.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[id.Username] = id
}

func (d *MemoryDirectory) Delete(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, username)
}

func (d *MemoryDirectory) LookupIdentity(_ context.Context, subject string) (auth.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.users[subject]
	if !ok {
		return auth.Identity{}, fmt.Errorf("%w: %s", auth.ErrIdentityNotFound, subject)
	}
	return id, nil
}

const lookupUserQuery = `SELECT email, role FROM users WHERE email = $1 AND active`

// PostgresDirectory lê identidades da tabela users. role pode conter vários
// papéis separados por vírgula.
type PostgresDirectory struct {
	db *sql.DB
}

var _ auth.IdentityLookup = (*PostgresDirectory)(nil)

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) LookupIdentity(ctx context.Context, subject string) (auth.Identity, error) {
	var email, role string
	err := d.db.QueryRowContext(ctx, lookupUserQuery, subject).Scan(&email, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, fmt.Errorf("%w: %s", auth.ErrIdentityNotFound, subject)
	}
	if err != nil {
		return auth.Identity{}, fmt.Errorf("lookup identity %q: %w", subject, err)
	}
	return auth.Identity{Username: email, Authorities: splitRoles(role)}, nil
}

func splitRoles(raw string) []string {
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
