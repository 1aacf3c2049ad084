package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/opd-ai/vock/limits"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// SessionKey is the symmetric key shared by two accepted sessions.
type SessionKey [KeySize]byte

// NonceSize is the size of the random nonce prefixed to sealed packets.
const NonceSize = 24

// ErrDecryptFailed indicates ciphertext that does not authenticate.
var ErrDecryptFailed = errors.New("decryption failed")

// SealTo encrypts message so that only the holder of the identity matching
// remotePublic can read it. Nothing about the sender is revealed.
func SealTo(remotePublic []byte, message []byte) ([]byte, error) {
	if len(remotePublic) != KeySize {
		return nil, fmt.Errorf("%w: public key is %d bytes", ErrInvalidKey, len(remotePublic))
	}
	if len(message) == 0 {
		return nil, limits.ErrMessageEmpty
	}

	var recipient [KeySize]byte
	copy(recipient[:], remotePublic)

	sealed, err := box.SealAnonymous(nil, message, &recipient, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal to identity: %w", err)
	}
	return sealed, nil
}

// Seal encrypts plaintext under the session key. The result is the random
// nonce followed by the secretbox ciphertext.
func Seal(key *SessionKey, plaintext []byte) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: no session key", ErrInvalidKey)
	}
	if err := limits.ValidateMessageSize(plaintext, limits.MaxDatagram); err != nil {
		return nil, err
	}

	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+secretbox.Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, plaintext, &nonce, (*[KeySize]byte)(key)), nil
}
