// Package limits provides centralized size limits for the vock protocol.
//
// The transport layer validates every outbound datagram against
// MaxDatagram, the session layer validates text messages against
// MaxTextMessage and voice frames against MaxVoiceFrame. Keeping the
// numbers in one place lets the receive buffer in the socket and the
// sender-side checks agree.
package limits
