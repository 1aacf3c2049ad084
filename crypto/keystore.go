package crypto

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is the number of iterations for key derivation (NIST recommendation)
	PBKDF2Iterations = 100000
	// SaltSize is the size of the salt for PBKDF2
	SaltSize = 32
)

// Key file layout:
//
//	plain:     magicPlain  | private key (32)
//	encrypted: magicSealed | salt (32) | nonce (24) | secretbox(private key)
var (
	magicPlain  = []byte("VOCKKEY0")
	magicSealed = []byte("VOCKKEY1")
)

// ErrBadKeyFile indicates a key file that is truncated, has an unknown
// header, or cannot be decrypted with the given password.
var ErrBadKeyFile = errors.New("bad key file")

// LoadIdentity reads the identity stored at path. If the file does not
// exist a new identity is generated and written there. An empty path
// always generates a throwaway identity.
func LoadIdentity(path, password string) (*Identity, error) {
	if path == "" {
		return GenerateIdentity()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		id, err := GenerateIdentity()
		if err != nil {
			return nil, err
		}
		if err := SaveIdentity(path, password, id); err != nil {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"function":    "LoadIdentity",
			"path":        path,
			"fingerprint": id.Fingerprint(),
		}).Info("Generated new identity key file")
		return id, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	return decodeKeyFile(data, password)
}

func decodeKeyFile(data []byte, password string) (*Identity, error) {
	var private [KeySize]byte

	switch {
	case bytes.HasPrefix(data, magicPlain):
		body := data[len(magicPlain):]
		if len(body) != KeySize {
			return nil, fmt.Errorf("%w: plain key is %d bytes", ErrBadKeyFile, len(body))
		}
		copy(private[:], body)

	case bytes.HasPrefix(data, magicSealed):
		body := data[len(magicSealed):]
		if len(body) != SaltSize+NonceSize+KeySize+secretbox.Overhead {
			return nil, fmt.Errorf("%w: sealed key is %d bytes", ErrBadKeyFile, len(body))
		}
		key := deriveFileKey(password, body[:SaltSize])
		defer ZeroBytes(key[:])

		var nonce [NonceSize]byte
		copy(nonce[:], body[SaltSize:SaltSize+NonceSize])
		opened, ok := secretbox.Open(nil, body[SaltSize+NonceSize:], &nonce, &key)
		if !ok {
			return nil, fmt.Errorf("%w: wrong password", ErrBadKeyFile)
		}
		copy(private[:], opened)
		ZeroBytes(opened)

	default:
		return nil, fmt.Errorf("%w: unknown header", ErrBadKeyFile)
	}

	defer ZeroBytes(private[:])
	return IdentityFromPrivate(private)
}

// SaveIdentity writes the identity's private key to path, encrypted when a
// password is given.
func SaveIdentity(path, password string, id *Identity) error {
	var out []byte
	if password == "" {
		out = append(append(out, magicPlain...), id.Private[:]...)
	} else {
		salt := make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
		var nonce [NonceSize]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return fmt.Errorf("generate nonce: %w", err)
		}
		key := deriveFileKey(password, salt)
		defer ZeroBytes(key[:])

		out = append(out, magicSealed...)
		out = append(out, salt...)
		out = append(out, nonce[:]...)
		out = secretbox.Seal(out, id.Private[:], &nonce, &key)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create key directory: %w", err)
		}
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

func deriveFileKey(password string, salt []byte) [KeySize]byte {
	derived := pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, KeySize, sha256.New)
	var key [KeySize]byte
	copy(key[:], derived)
	ZeroBytes(derived)
	return key
}

// PendingIdentity is an identity that may still be loading. It resolves
// exactly once.
type PendingIdentity struct {
	done chan struct{}
	id   *Identity
	err  error
}

// LoadIdentityAsync starts loading the identity in the background.
func LoadIdentityAsync(path, password string) *PendingIdentity {
	p := &PendingIdentity{done: make(chan struct{})}
	go func() {
		p.id, p.err = LoadIdentity(path, password)
		if p.err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "LoadIdentityAsync",
				"path":     path,
				"error":    p.err.Error(),
			}).Error("Failed to load identity")
		}
		close(p.done)
	}()
	return p
}

// ReadyIdentity wraps an already loaded identity.
func ReadyIdentity(id *Identity) *PendingIdentity {
	p := &PendingIdentity{done: make(chan struct{}), id: id}
	if id == nil {
		p.err = fmt.Errorf("%w: nil identity", ErrInvalidKey)
	}
	close(p.done)
	return p
}

// Done is closed once loading has finished.
func (p *PendingIdentity) Done() <-chan struct{} {
	return p.done
}

// Result returns the loaded identity. It must only be called after Done
// is closed.
func (p *PendingIdentity) Result() (*Identity, error) {
	return p.id, p.err
}

// Wait blocks until the identity is loaded or ctx ends.
func (p *PendingIdentity) Wait(ctx context.Context) (*Identity, error) {
	select {
	case <-p.done:
		return p.id, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
