// Package peer implements the per-peer session protocol: handshake and key
// exchange, keepalive, ordered voice delivery, a reliable sub-channel for
// text, relay fallback and close.
//
// Each Session owns a single goroutine. Every state change, timer expiry
// and inbound packet is processed on that goroutine, so session state is
// never shared. Callers interact through non-blocking methods (Connect,
// Receive, SendVoice, SendText, Close, Reset) and observe the session
// through a Handler.
//
// # Handshake
//
// A connecting session sends helo packets carrying its room id and
// identity public key every HandshakeInterval. The receiving side asks its
// Handler to authorize the fingerprint of that key and, while the answer is
// pending, sends wait packets so the initiator does not give up. Once
// approved it replies with an acpt packet holding its ephemeral key-exchange
// value sealed to the initiator's identity, and starts connecting itself.
// Each side derives the session key from the other's acpt; from then on all
// non-handshake packets are encrypted.
//
// If no acpt arrives within ConnectTimeout the session switches to relay
// mode, doubles the timeout and retries. A second timeout closes the
// session with reason "timeout".
package peer
