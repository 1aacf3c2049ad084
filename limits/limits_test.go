package limits

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/nacl/secretbox"
)

// TestSealOverheadMatchesSecretbox verifies the overhead constant against the
// secretbox tag size plus the nonce prefix used by the crypto package.
func TestSealOverheadMatchesSecretbox(t *testing.T) {
	if SealOverhead != 24+secretbox.Overhead {
		t.Errorf("SealOverhead = %d, want %d", SealOverhead, 24+secretbox.Overhead)
	}
}

func TestValidateMessageSize(t *testing.T) {
	tests := []struct {
		name    string
		message []byte
		max     int
		wantErr error
	}{
		{"empty", nil, 10, ErrMessageEmpty},
		{"at limit", make([]byte, 10), 10, nil},
		{"over limit", make([]byte, 11), 10, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageSize(tt.message, tt.max)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateText(t *testing.T) {
	if err := ValidateText("hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateText(""); !errors.Is(err, ErrMessageEmpty) {
		t.Fatalf("expected ErrMessageEmpty, got %v", err)
	}
	if err := ValidateText(strings.Repeat("x", MaxTextMessage+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestValidateDatagramAndVoiceFrame(t *testing.T) {
	if err := ValidateDatagram(make([]byte, MaxDatagram)); err != nil {
		t.Errorf("datagram at limit rejected: %v", err)
	}
	if err := ValidateDatagram(make([]byte, MaxDatagram+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
	if err := ValidateVoiceFrame(make([]byte, 1920)); err != nil {
		t.Errorf("20ms PCM frame rejected: %v", err)
	}
	if err := ValidateVoiceFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty, got %v", err)
	}
}
