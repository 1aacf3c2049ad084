package crypto

import (
	"crypto/subtle"
	"runtime"
)

// ZeroBytes erases the contents of a byte slice containing sensitive data.
func ZeroBytes(data []byte) {
	if data == nil {
		return
	}

	zeros := make([]byte, len(data))
	// The compare keeps the compiler from treating the copy as dead.
	subtle.ConstantTimeCompare(data, zeros)
	copy(data, zeros)

	runtime.KeepAlive(data)
	runtime.KeepAlive(zeros)
}

// Wipe erases the private half of the identity.
func (id *Identity) Wipe() {
	if id == nil {
		return
	}
	ZeroBytes(id.Private[:])
}
