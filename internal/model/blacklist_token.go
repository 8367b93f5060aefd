package model

import "time"

// Token kinds stored in the blacklist. A jti is unique per kind; a token of
// one kind never validates against the other kind's secret.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// BlacklistToken models a revoked token identifier in the `blacklist_tokens`
// table. The presence of a (jti, kind) row means that token is permanently
// revoked. Rows self-expire: a cleanup job deletes entries whose ExpiresAt
// has passed, and lookups ignore expired rows, emulating a TTL index.
//
// Fields:
//  ID        – primary key identifier.
//  JTI       – the token's unique identifier claim; unique together with Kind.
//  Kind      – "access" or "refresh".
//  UserID    – owner of the revoked token.
//  ExpiresAt – natural expiry of the revoked token; drives garbage collection.
//  CreatedAt – timestamp of revocation.
type BlacklistToken struct {
	ID        uint64    // blacklist_tokens.id
	JTI       string    // blacklist_tokens.jti
	Kind      string    // blacklist_tokens.kind
	UserID    uint64    // blacklist_tokens.user_id
	ExpiresAt time.Time // blacklist_tokens.expires_at
	CreatedAt time.Time // blacklist_tokens.created_at
}
