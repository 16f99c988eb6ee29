package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

func testReader(t *testing.T) *TokenReader {
	t.Helper()
	viper.Set("security.jwt_secret", "unit-test-secret")
	viper.Set("security.jwt_issuer", "hangouts")
	return NewTokenReader()
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestParseValidToken(t *testing.T) {
	reader := testReader(t)

	token := signToken(t, jwt.SigningMethodHS256, []byte("unit-test-secret"), Claims{
		AccountID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "hangouts",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	accountID, err := reader.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if accountID != 42 {
		t.Errorf("account id = %d, want 42", accountID)
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	reader := testReader(t)

	expires := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other-secret"), Claims{
			AccountID:        42,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "hangouts", ExpiresAt: expires},
		}),
		"wrong issuer": signToken(t, jwt.SigningMethodHS256, []byte("unit-test-secret"), Claims{
			AccountID:        42,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", ExpiresAt: expires},
		}),
		"missing account": signToken(t, jwt.SigningMethodHS256, []byte("unit-test-secret"), Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "hangouts", ExpiresAt: expires},
		}),
		"expired": signToken(t, jwt.SigningMethodHS256, []byte("unit-test-secret"), Claims{
			AccountID: 42,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "hangouts",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}),
		"garbage": "not.a.token",
	}

	for name, token := range cases {
		if _, err := reader.Parse(token); err == nil {
			t.Errorf("%s: parse accepted an invalid token", name)
		}
	}
}
