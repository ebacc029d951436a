package jwtx

import (
	"fmt"
	"math/rand/v2"

	"github.com/aussiebroadwan/trustcore/pkg/cryptox"
)

const (
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

const (
	defaultNumKeys = 2
	maxNumKeys     = 10
)

// KeyManager owns the signing keys of one process. Keys are generated at
// startup and live only in memory, so a restart invalidates every access
// token issued before it. Refresh tokens are unaffected.
type KeyManager struct {
	Verifier *KeyVerifier
	KeySet   *KeySet

	algorithm string
	signers   []Signer
}

type KeyManagerOptions struct {
	// Algorithm is EdDSA (default) or ES256.
	Algorithm string

	// Issuer is stamped into and required on every token.
	Issuer string

	// NumKeys defaults to 2 and is capped at 10. Signing picks one at random.
	NumKeys int
}

// NewEphemeralKeyManager generates opts.NumKeys key pairs and wires them
// into a KeySet and a matching verifier.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}
	if opts.Algorithm == "" {
		opts.Algorithm = AlgorithmEdDSA
	}

	numKeys := opts.NumKeys
	if numKeys <= 0 {
		numKeys = defaultNumKeys
	}
	numKeys = min(numKeys, maxNumKeys)

	keyset := NewKeySet()
	signers := make([]Signer, 0, numKeys)

	for i := range numKeys {
		kid, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate key id: %w", err)
		}

		signer, err := generateSigner(opts.Algorithm, "trust-"+kid)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate signer %d: %w", i+1, err)
		}
		if err := keyset.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: add signer %d to keyset: %w", i+1, err)
		}
		signers = append(signers, signer)
	}

	return &KeyManager{
		Verifier:  NewVerifier(keyset, opts.Issuer, opts.Algorithm),
		KeySet:    keyset,
		algorithm: opts.Algorithm,
		signers:   signers,
	}, nil
}

func generateSigner(algorithm, kid string) (Signer, error) {
	switch algorithm {
	case AlgorithmES256:
		pemBytes, err := cryptox.GenerateES256Key()
		if err != nil {
			return nil, err
		}
		return NewSignerES256(kid, pemBytes)

	case AlgorithmEdDSA:
		pemBytes, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, err
		}
		return NewSignerEdDSA(kid, pemBytes)

	default:
		return nil, fmt.Errorf("unsupported algorithm %q (supported: ES256, EdDSA)", algorithm)
	}
}

func (km *KeyManager) Algorithm() string { return km.algorithm }
func (km *KeyManager) NumSigners() int   { return len(km.signers) }
func (km *KeyManager) IsReady() bool     { return km.KeySet.IsReady() }

// GetSigner picks a signing key at random.
func (km *KeyManager) GetSigner() Signer {
	if len(km.signers) == 1 {
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))]
}
