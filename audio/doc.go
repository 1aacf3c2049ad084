// Package audio provides the voice pipeline around a session: encoding
// captured PCM into frames, decoding received frames, and mixing every
// peer's voice into a single playback stream.
//
// Frames carry a one-byte codec tag followed by the payload:
//
//	0x00  little-endian 16-bit mono PCM
//	0x01  an Opus packet, decoded with pion/opus
//
// Outgoing audio is always PCM; Opus frames from other implementations are
// accepted on receive. Audio is mono at the configured sample rate and
// framed in 20ms chunks.
package audio
