package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxDatagram is the largest serialized datagram the socket sends or
	// accepts, relay envelope included.
	MaxDatagram = 4096

	// MaxVoiceFrame is the largest coded audio frame a session will send.
	// 20ms of 48kHz mono PCM (1920 bytes) fits with room for headers.
	MaxVoiceFrame = 2048

	// MaxTextMessage is the largest text message carried on the reliable
	// sub-channel.
	MaxTextMessage = 1024

	// SealOverhead is what symmetric packet encryption adds: a 24 byte
	// nonce prefix plus the Poly1305 tag (secretbox.Overhead).
	SealOverhead = 24 + 16
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateDatagram validates a serialized datagram against MaxDatagram.
func ValidateDatagram(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > MaxDatagram {
		return fmt.Errorf("%w: datagram size %d exceeds limit %d", ErrMessageTooLarge, len(data), MaxDatagram)
	}
	return nil
}

// ValidateText validates a text message against MaxTextMessage.
func ValidateText(text string) error {
	if len(text) == 0 {
		return ErrMessageEmpty
	}
	if len(text) > MaxTextMessage {
		return fmt.Errorf("%w: text size %d exceeds limit %d", ErrMessageTooLarge, len(text), MaxTextMessage)
	}
	return nil
}

// ValidateVoiceFrame validates a coded audio frame against MaxVoiceFrame.
func ValidateVoiceFrame(frame []byte) error {
	if len(frame) == 0 {
		return ErrMessageEmpty
	}
	if len(frame) > MaxVoiceFrame {
		return fmt.Errorf("%w: voice frame size %d exceeds limit %d", ErrMessageTooLarge, len(frame), MaxVoiceFrame)
	}
	return nil
}
