package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Source delivers captured PCM frames.
type Source interface {
	// Start begins capture, calling onFrame for every frame from a
	// background goroutine.
	Start(onFrame func(pcm []int16)) error
	// Stop ends capture.
	Stop() error
}

// Sink plays PCM frames.
type Sink interface {
	Write(pcm []int16) error
}

// ReaderSource captures raw little-endian 16-bit mono PCM from a reader,
// such as a pipe from an external recorder.
type ReaderSource struct {
	r            io.Reader
	frameSamples int

	mu   sync.Mutex
	stop chan struct{}
}

// NewReaderSource creates a source reading frameSamples samples at a time.
func NewReaderSource(r io.Reader, frameSamples int) *ReaderSource {
	return &ReaderSource{r: r, frameSamples: frameSamples}
}

// Start implements Source.
func (s *ReaderSource) Start(onFrame func(pcm []int16)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return errors.New("capture already started")
	}
	s.stop = make(chan struct{})
	stop := s.stop

	go func() {
		for {
			pcm := make([]int16, s.frameSamples)
			if err := binary.Read(s.r, binary.LittleEndian, pcm); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					logrus.WithFields(logrus.Fields{
						"function": "ReaderSource.Start",
						"error":    err.Error(),
					}).Warn("Capture stopped")
				}
				return
			}
			select {
			case <-stop:
				return
			default:
			}
			onFrame(pcm)
		}
	}()
	return nil
}

// Stop implements Source.
func (s *ReaderSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return nil
}

// WriterSink plays by writing raw little-endian PCM to a writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Write implements Sink.
func (s *WriterSink) Write(pcm []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return binary.Write(s.w, binary.LittleEndian, pcm)
}

// DiscardSink drops every frame.
type DiscardSink struct{}

// Write implements Sink.
func (DiscardSink) Write([]int16) error { return nil }

// Play pulls one mixed frame per interval from m and writes it to sink
// until ctx ends or the sink fails.
func Play(ctx context.Context, m *Mixer, sink Sink, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := sink.Write(m.Mix()); err != nil {
				return fmt.Errorf("playback: %w", err)
			}
		}
	}
}
