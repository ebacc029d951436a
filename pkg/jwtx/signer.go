package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs access tokens with one key.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
	Validate() error
}

// NewSignerEdDSA creates an EdDSA signer from a PKCS8 PEM Ed25519 key.
func NewSignerEdDSA(kid string, pemKey []byte) (Signer, error) {
	priv, err := parsePKCS8(pemKey)
	if err != nil {
		return nil, err
	}
	key, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not an Ed25519 private key")
	}
	return &edDSASigner{kid: kid, key: key}, nil
}

// NewSignerES256 creates an ES256 signer from a PKCS8 PEM P-256 key.
func NewSignerES256(kid string, pemKey []byte) (Signer, error) {
	priv, err := parsePKCS8(pemKey)
	if err != nil {
		return nil, err
	}
	key, ok := priv.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not an ECDSA private key")
	}
	return &es256Signer{kid: kid, key: key}, nil
}

func parsePKCS8(pemKey []byte) (any, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM")
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("jwtx: expected PRIVATE KEY, got %q (PKCS8 required)", block.Type)
	}
	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
	}
	return priv, nil
}

func sign(method jwt.SigningMethod, kid string, key any, claims Claims) (string, error) {
	t := jwt.NewWithClaims(method, claims)
	t.Header["kid"] = kid
	return t.SignedString(key)
}

type edDSASigner struct {
	kid string
	key ed25519.PrivateKey
}

func (s *edDSASigner) Alg() string { return AlgorithmEdDSA }
func (s *edDSASigner) KID() string { return s.kid }

func (s *edDSASigner) Sign(c Claims) (string, error) {
	return sign(jwt.SigningMethodEdDSA, s.kid, s.key, c)
}

func (s *edDSASigner) PublicJWK() JWK {
	return NewEd25519JWK(s.kid, s.key.Public().(ed25519.PublicKey))
}

func (s *edDSASigner) Validate() error {
	if len(s.key) != ed25519.PrivateKeySize {
		return errors.New("jwtx: invalid Ed25519 private key size")
	}
	return nil
}

type es256Signer struct {
	kid string
	key *ecdsa.PrivateKey
}

func (s *es256Signer) Alg() string { return AlgorithmES256 }
func (s *es256Signer) KID() string { return s.kid }

func (s *es256Signer) Sign(c Claims) (string, error) {
	return sign(jwt.SigningMethodES256, s.kid, s.key, c)
}

func (s *es256Signer) PublicJWK() JWK {
	return NewES256JWK(s.kid, &s.key.PublicKey)
}

func (s *es256Signer) Validate() error {
	if s.key == nil {
		return errors.New("jwtx: nil ECDSA key")
	}
	if name := s.key.Curve.Params().Name; name != "P-256" {
		return fmt.Errorf("jwtx: expected P-256 curve, got %s", name)
	}
	return nil
}
