package crypto

import (
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// Open decrypts a message sealed to this identity with SealTo.
func (id *Identity) Open(sealed []byte) ([]byte, error) {
	if len(sealed) <= box.AnonymousOverhead {
		return nil, fmt.Errorf("%w: sealed message too short", ErrDecryptFailed)
	}

	out, ok := box.OpenAnonymous(nil, sealed, &id.Public, &id.Private)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return out, nil
}

// Open decrypts a packet sealed with Seal.
func Open(key *SessionKey, sealed []byte) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: no session key", ErrInvalidKey)
	}
	if len(sealed) < NonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptFailed)
	}

	var nonce [NonceSize]byte
	copy(nonce[:], sealed[:NonceSize])

	out, ok := secretbox.Open(nil, sealed[NonceSize:], &nonce, (*[KeySize]byte)(key))
	if !ok {
		return nil, fmt.Errorf("%w: message authentication failed", ErrDecryptFailed)
	}
	return out, nil
}
