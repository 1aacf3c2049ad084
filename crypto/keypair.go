package crypto

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeySize is the size of identity and ephemeral keys.
const KeySize = 32

// ErrInvalidKey indicates a key of the wrong size or an all-zero key.
var ErrInvalidKey = errors.New("invalid key")

// Identity is the long-lived NaCl box keypair of a vock process.
type Identity struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateIdentity creates a new random identity.
func GenerateIdentity() (*Identity, error) {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}

	return &Identity{
		Public:  *publicKey,
		Private: *privateKey,
	}, nil
}

// IdentityFromPrivate rebuilds an identity from a stored private key.
func IdentityFromPrivate(privateKey [KeySize]byte) (*Identity, error) {
	if isZeroKey(privateKey) {
		return nil, fmt.Errorf("%w: all zeros", ErrInvalidKey)
	}

	publicKey, err := curve25519.X25519(privateKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	id := &Identity{Private: privateKey}
	copy(id.Public[:], publicKey)
	return id, nil
}

// Fingerprint returns the fingerprint of this identity's public key.
func (id *Identity) Fingerprint() string {
	return Fingerprint(id.Public[:])
}

// Fingerprint hashes a public identity key into the hex string used as the
// authorization key.
func Fingerprint(publicKey []byte) string {
	sum := sha1.Sum(publicKey)
	return hex.EncodeToString(sum[:])
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [KeySize]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
