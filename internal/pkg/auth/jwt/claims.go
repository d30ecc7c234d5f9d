package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the claims carried by a chat/video provider token. The backend
// signs these tokens with the provider secret, so the client can only inspect them.
type Payload struct {
	// StandardClaims embeds the registered claims (exp, iat, iss). Provider tokens
	// often omit exp; a zero value means the token does not expire on its own.
	jwt.StandardClaims

	// UserID is the provider user the token is scoped to.
	UserID string `json:"user_id"`
}
