// Package crypto implements the identity and encryption primitives used by
// vock sessions.
//
// # Identity
//
// Every process owns one long-lived [Identity]: a Curve25519 NaCl box
// keypair. Its public half is announced in helo packets and its SHA-1
// [Fingerprint] is what the user authorizes. Identities are loaded from a
// key file (optionally password protected with PBKDF2 + secretbox) or
// generated on first use:
//
//	pending := crypto.LoadIdentityAsync(os.Getenv("VOCK_KEY_FILE"), os.Getenv("VOCK_KEY_PASSWORD"))
//	id, err := pending.Wait(ctx)
//
// # Key exchange
//
// Each session creates an [Ephemeral] Diffie-Hellman keypair (noise.DH25519).
// The ephemeral public value travels to the peer sealed under the peer's
// identity ([SealTo] / [Identity.Open], anonymous NaCl boxes); both sides
// then derive the same [SessionKey] with [Ephemeral.SharedSecret].
//
// # Packet encryption
//
// [Seal] and [Open] encrypt serialized packets under the session key with
// secretbox, prefixing a random 24-byte nonce.
package crypto
