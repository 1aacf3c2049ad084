package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// Codec tags.
const (
	CodecPCM  byte = 0x00
	CodecOpus byte = 0x01
)

// DefaultSampleRate is the capture and playback rate.
const DefaultSampleRate = 48000

var (
	// ErrEmptyFrame indicates a frame without payload.
	ErrEmptyFrame = errors.New("empty audio frame")
	// ErrUnknownCodec indicates a frame with an unsupported codec tag.
	ErrUnknownCodec = errors.New("unknown audio codec")
)

// FrameSamples returns the number of samples in a 20ms frame.
func FrameSamples(sampleRate uint32) int {
	return int(sampleRate / 50)
}

// Encoder turns PCM samples into a tagged frame.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// PCMEncoder emits uncompressed frames.
type PCMEncoder struct{}

// NewPCMEncoder creates a PCM encoder.
func NewPCMEncoder() *PCMEncoder {
	return &PCMEncoder{}
}

// Encode implements Encoder.
func (PCMEncoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyFrame
	}

	data := make([]byte, 1+len(pcm)*2)
	data[0] = CodecPCM
	for i, sample := range pcm {
		data[1+i*2] = byte(sample)
		data[2+i*2] = byte(sample >> 8)
	}
	return data, nil
}

// Decoder turns tagged frames back into PCM at a fixed output rate. One
// Decoder serves one remote stream; Opus decoding is stateful.
type Decoder struct {
	mu         sync.Mutex
	sampleRate uint32
	opus       opus.Decoder
	output     []byte
}

// NewDecoder creates a decoder producing PCM at sampleRate.
func NewDecoder(sampleRate uint32) *Decoder {
	return &Decoder{
		sampleRate: sampleRate,
		opus:       opus.NewDecoder(),
		// 1920 samples covers a 40ms Opus frame at 48kHz.
		output: make([]byte, 1920*2),
	}
}

// SampleRate returns the output sample rate.
func (d *Decoder) SampleRate() uint32 {
	return d.sampleRate
}

// Decode decodes one frame.
func (d *Decoder) Decode(frame []byte) ([]int16, error) {
	if len(frame) < 2 {
		return nil, ErrEmptyFrame
	}

	switch frame[0] {
	case CodecPCM:
		return decodePCM(frame[1:]), nil
	case CodecOpus:
		return d.decodeOpus(frame[1:])
	default:
		return nil, fmt.Errorf("%w: tag 0x%02x", ErrUnknownCodec, frame[0])
	}
}

func (d *Decoder) decodeOpus(data []byte) ([]int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bandwidth, isStereo, err := d.opus.Decode(data, d.output)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	pcm := decodePCM(d.output)
	if isStereo {
		pcm = downmix(pcm)
	}

	rate := uint32(bandwidth.SampleRate())
	logrus.WithFields(logrus.Fields{
		"function":    "Decoder.decodeOpus",
		"bandwidth":   bandwidth.String(),
		"is_stereo":   isStereo,
		"sample_rate": rate,
	}).Debug("Decoded opus frame")

	if rate != d.sampleRate {
		pcm = resample(pcm, rate, d.sampleRate)
	}
	return pcm, nil
}

func decodePCM(data []byte) []int16 {
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return pcm
}

// downmix averages interleaved stereo samples into mono.
func downmix(stereo []int16) []int16 {
	mono := make([]int16, len(stereo)/2)
	for i := range mono {
		mono[i] = int16((int32(stereo[i*2]) + int32(stereo[i*2+1])) / 2)
	}
	return mono
}
