package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

// TokenReader verifies tokens issued by the external identity provider. This
// service never mints tokens; it only resolves them to a stable account id.
type TokenReader struct {
	secret []byte
	issuer string
}

type Claims struct {
	AccountID uint `json:"account_id"`
	jwt.RegisteredClaims
}

func NewTokenReader() *TokenReader {
	return &TokenReader{
		secret: []byte(viper.GetString("security.jwt_secret")),
		issuer: viper.GetString("security.jwt_issuer"),
	}
}

// Parse resolves a verified token to the account id it was issued for.
func (r *TokenReader) Parse(tokenStr string) (uint, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return r.secret, nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, jwt.ErrTokenInvalidClaims
	}
	if len(r.issuer) > 0 && claims.Issuer != r.issuer {
		return 0, jwt.ErrTokenInvalidIssuer
	}
	if claims.AccountID == 0 {
		return 0, jwt.ErrTokenInvalidClaims
	}

	return claims.AccountID, nil
}
