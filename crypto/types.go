package crypto

import (
	"crypto"
	"errors"
)

// KeyType identifies the signature algorithm a KeyPair implements.
type KeyType string

const (
	// KeyTypeEd25519 is the only algorithm this relay trusts: peer
	// identity and every wire signature is Ed25519.
	KeyTypeEd25519 KeyType = "Ed25519"
)

// KeyPair represents a cryptographic identity capable of signing and
// verifying bytes. Implementations live in crypto/keys.
type KeyPair interface {
	// PublicKey returns the public key
	PublicKey() crypto.PublicKey

	// PrivateKey returns the private key
	PrivateKey() crypto.PrivateKey

	// Type returns the key type
	Type() KeyType

	// Sign signs the given message
	Sign(message []byte) ([]byte, error)

	// Verify verifies the signature
	Verify(message, signature []byte) error

	// ID returns a unique identifier for this key pair
	ID() string
}

// Common errors
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidKeyLength = errors.New("invalid key length")
	ErrInvalidEncoding  = errors.New("invalid base64 encoding")
)
