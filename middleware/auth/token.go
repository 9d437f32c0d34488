package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const BearerPrefix = "Bearer "

var (
	ErrEmptySecret  = errors.New("jwt secret is required")
	ErrEmptySubject = errors.New("token has no subject")
)

// Claims são as claims do token: subject, exp e os papéis do usuário.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenService assina e verifica tokens com uma chave simétrica.
// Não existe chave padrão: sem segredo o serviço não é criado.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

type TokenOption func(*TokenService)

// WithTTL define a validade dos tokens emitidos (padrão 24h).
func WithTTL(d time.Duration) TokenOption {
	return func(s *TokenService) { s.ttl = d }
}

func WithIssuer(iss string) TokenOption {
	return func(s *TokenService) { s.issuer = iss }
}

func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	s := &TokenService{
		secret: []byte(secret),
		ttl:    24 * time.Hour,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	}
	if s.issuer != "" {
		popts = append(popts, jwt.WithIssuer(s.issuer))
	}
	s.parser = jwt.NewParser(popts...)
	return s, nil
}

// Subject verifica a assinatura, lê as claims e devolve o subject.
func (s *TokenService) Subject(token string) (string, *Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", nil, err
	}
	if claims.Subject == "" {
		return "", nil, ErrEmptySubject
	}
	return claims.Subject, claims, nil
}

// Valid confere o token contra a identidade encontrada: o subject tem que ser
// exatamente o username e, se houver exp, ele tem que estar estritamente no futuro.
func (s *TokenService) Valid(claims *Claims, id Identity) bool {
	if claims == nil || claims.Subject != id.Username {
		return false
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.Time.After(s.now()) {
		return false
	}
	return true
}

// Issue emite um token para subject com os papéis informados.
func (s *TokenService) Issue(subject string, roles []string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, ErrEmptySubject
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// IssueWithExpiry é como Issue, mas com exp explícito (testes e tokenctl).
func (s *TokenService) IssueWithExpiry(subject string, roles []string, exp time.Time) (string, error) {
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// BearerToken extrai o token do header Authorization.
// Só aceita o prefixo literal "Bearer ".
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(header, BearerPrefix), true
}
