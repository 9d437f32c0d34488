// Package auth autentica requisições por bearer token (JWT HMAC).
//
// A autenticação nunca bloqueia a requisição: token ausente, malformado,
// expirado ou de usuário desconhecido apenas deixa a requisição anônima.
// Quem exige identidade são os handlers adiante (RequireIdentity,
// RequireAuthority) ou o upstream, via ForwardIdentity.
//
// Fluxo do Authenticator:
//
//  1. Sem "Bearer " no Authorization: segue anônimo
//  2. Extrai o subject verificando a assinatura (falha: log e segue anônimo)
//  3. Se ainda não há identidade no ctx: busca no IdentityLookup
//  4. Revalida o token contra a identidade (subject igual e exp no futuro)
//  5. Sucesso: identidade no ctx + evento de auditoria API_ACCESS/AUTH/SUCCESS
//
// Erros inesperados (inclusive panic) viram auditoria FAILED e a requisição continua.
package auth
