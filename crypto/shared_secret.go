package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"
)

// sessionInfo binds derived keys to this protocol.
var sessionInfo = []byte("vock session key v1")

// Ephemeral is the per-session Diffie-Hellman keypair. It is used for one
// key exchange and wiped when the session closes.
type Ephemeral struct {
	key noise.DHKey
}

// NewEphemeral generates a fresh Curve25519 keypair.
func NewEphemeral() (*Ephemeral, error) {
	key, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral keypair: %w", err)
	}
	return &Ephemeral{key: key}, nil
}

// Public returns a copy of the public key-exchange value.
func (e *Ephemeral) Public() []byte {
	return append([]byte(nil), e.key.Public...)
}

// SharedSecret derives the session key from our private value and the
// peer's public value. Both sides of an exchange derive the same key.
func (e *Ephemeral) SharedSecret(remotePublic []byte) (*SessionKey, error) {
	if len(remotePublic) != noise.DH25519.DHLen() {
		return nil, fmt.Errorf("%w: key-exchange value is %d bytes", ErrInvalidKey, len(remotePublic))
	}
	if len(e.key.Private) == 0 {
		return nil, fmt.Errorf("%w: ephemeral key wiped", ErrInvalidKey)
	}

	logrus.WithFields(logrus.Fields{
		"function":        "Ephemeral.SharedSecret",
		"peer_key_prefix": fmt.Sprintf("%x", remotePublic[:8]),
	}).Debug("Computing shared secret")

	raw, err := noise.DH25519.DH(e.key.Private, remotePublic)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}
	defer ZeroBytes(raw)

	var key SessionKey
	kdf := hkdf.New(sha256.New, raw, nil, sessionInfo)
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return &key, nil
}

// Wipe erases the private value. SharedSecret fails afterwards.
func (e *Ephemeral) Wipe() {
	if e == nil {
		return
	}
	ZeroBytes(e.key.Private)
	e.key.Private = nil
}
