// Copyright (c) 2026 Tessera. All rights reserved.

package authz

import (
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// roleClaims is the payload embedded inside repository-issued access tokens.
// The role list is abbreviated to keep the JWT payload small.
type roleClaims struct {
	jwt.RegisteredClaims

	Roles []string `json:"rol"`
}

// TokenVerifier validates RS256 bearer tokens and extracts the caller's
// roles. It implements the middleware RoleVerifier interface.
type TokenVerifier struct {
	publicKey *rsa.PublicKey
	issuer    string
}

// NewTokenVerifier reads the RSA public key from the given path.
func NewTokenVerifier(publicKeyPath, issuer string) (*TokenVerifier, error) {
	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to parse public key: %w", err)
	}

	return &TokenVerifier{publicKey: publicKey, issuer: issuer}, nil
}

// VerifyRoles checks the signature and validity of a JWT string and returns
// the embedded roles.
func (v *TokenVerifier) VerifyRoles(tokenString string) ([]string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &roleClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("authz: unexpected signing method: %v", token.Header["alg"])
		}
		return v.publicKey, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		return nil, fmt.Errorf("authz: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*roleClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("authz: invalid token claims")
	}
	return claims.Roles, nil
}
