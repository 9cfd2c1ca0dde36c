package keys

import (
	"crypto/ed25519"
	"encoding/base64"

	relaycrypto "github.com/lineswarm/relay/crypto"
)

// EncodePublicKey renders a public key as standard-alphabet base64, the
// wire and config representation used throughout certificates and trusted
// peer lists.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub)
}

// DecodePublicKey parses a base64-encoded public key, rejecting malformed
// encodings and keys of the wrong length.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, relaycrypto.ErrInvalidEncoding
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, relaycrypto.ErrInvalidKeyLength
	}
	return ed25519.PublicKey(raw), nil
}

// EncodeSignature renders a signature as standard-alphabet base64.
func EncodeSignature(sig []byte) string {
	return base64.StdEncoding.EncodeToString(sig)
}

// DecodeSignature parses a base64-encoded signature.
func DecodeSignature(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, relaycrypto.ErrInvalidEncoding
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, relaycrypto.ErrInvalidKeyLength
	}
	return raw, nil
}

// EncodePrivateKey renders a private key as standard-alphabet base64, used
// only by the keygen CLI command and local config loading, never sent
// over the wire.
func EncodePrivateKey(priv ed25519.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(priv)
}

// DecodePrivateKey parses a base64-encoded private key.
func DecodePrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, relaycrypto.ErrInvalidEncoding
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, relaycrypto.ErrInvalidKeyLength
	}
	return ed25519.PrivateKey(raw), nil
}
