package callback

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gravitational/trace"
	"golang.org/x/oauth2"
)

// Credential is the result of a successful code exchange. Everything besides
// the access token is passed through from the provider as is.
type Credential struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	Expiry       time.Time

	// IDToken is the raw OpenID Connect id_token, if the provider sent one.
	IDToken string
	// Claims holds the id_token payload. The signature is not verified,
	// so the claims must not be used for authorization decisions.
	Claims jwt.MapClaims
}

func newCredential(token *oauth2.Token) (*Credential, error) {
	cred := &Credential{
		AccessToken:  token.AccessToken,
		TokenType:    token.Type(),
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return cred, nil
	}

	claims, err := parseIDTokenClaims(idToken)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	cred.IDToken = idToken
	cred.Claims = claims

	return cred, nil
}

func parseIDTokenClaims(idToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(idToken, claims); err != nil {
		return nil, trace.BadParameter("malformed id_token: %v", err)
	}
	return claims, nil
}

// Email returns the "email" claim of the id_token, or an empty string.
func (c *Credential) Email() string {
	email, _ := c.Claims["email"].(string)
	return email
}

// Subject returns the "sub" claim of the id_token, or an empty string.
func (c *Credential) Subject() string {
	sub, _ := c.Claims["sub"].(string)
	return sub
}
