// internal/media/graph.go
package media

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/voxtest/fauxmic/internal/wav"
)

// StreamSource builds and memoizes the live-looking audio signal path handed
// to the application as its "microphone". Two paths:
//
//   - graph path: an AudioContext (resumed if suspended) feeding a
//     MediaStreamDestination from either a looped fixture element or an
//     oscillator;
//   - fallback path: on any graph failure, a minimal one-live-track stream.
//
// The fallback never fails; it is the last line of defense against hanging
// the UI under test.
type StreamSource struct {
	mu      sync.Mutex
	logger  *zap.Logger
	payload *wav.Payload // nil selects the oscillator path

	// newContext is the construction seam. It stands in for environments
	// where the AudioContext constructor is missing or disallowed.
	newContext func() (Capabilities, error)

	stream   *Stream
	audioCtx Capabilities
	element  *AudioElement
}

// NewStreamSource builds a source. payload may be nil.
func NewStreamSource(payload *wav.Payload, logger *zap.Logger) *StreamSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamSource{
		logger:  logger.Named("stream_source"),
		payload: payload,
		newContext: func() (Capabilities, error) {
			return Patch(NewAudioContext()), nil
		},
	}
}

// SetContextFactory overrides how the graph obtains its AudioContext. Used
// for environments with a pre-existing (possibly vendor-prefixed) context
// and by tests simulating construction failure.
func (s *StreamSource) SetContextFactory(f func() (Capabilities, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newContext = f
}

// GetStream returns the session stream, building it on first use. Repeat
// calls return the cached stream. It never returns an error: graph failures
// degrade to the minimal fallback stream.
func (s *StreamSource) GetStream(ctx context.Context) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return s.stream
	}

	stream, err := s.buildGraph(ctx)
	if err != nil {
		s.logger.Warn("Audio graph construction failed; using minimal fallback stream.", zap.Error(err))
		stream = NewStream(NewAudioTrack("Fallback Audio"))
	}
	s.stream = stream
	return s.stream
}

// buildGraph constructs the node path terminating in a stream destination.
func (s *StreamSource) buildGraph(ctx context.Context) (*Stream, error) {
	ac, err := s.newContext()
	if err != nil {
		return nil, fmt.Errorf("audio context unavailable: %w", err)
	}

	// Browser autoplay policy leaves fresh contexts suspended.
	if ac.State() == ContextSuspended {
		if err := ac.Resume(ctx); err != nil {
			return nil, fmt.Errorf("failed to resume audio context: %w", err)
		}
	}

	dest := ac.CreateMediaStreamDestination()

	if s.payload != nil {
		element := NewAudioElement(*s.payload)
		element.Play()
		src := ac.CreateMediaElementSource(element)
		src.Connect(dest)
		s.element = element
		s.logger.Debug("Stream graph built from fixture payload.",
			zap.String("mime_type", s.payload.MIMEType),
			zap.Int("bytes", len(s.payload.Bytes)))
	} else {
		osc := ac.CreateOscillator()
		osc.Frequency.Value = wav.DefaultFrequency
		osc.Connect(dest)
		osc.Start()
		s.logger.Debug("Stream graph built from oscillator tone.")
	}

	s.audioCtx = ac
	return dest.Stream(), nil
}

// EnsureResumed re-resumes the context and playback after the page regained
// focus or navigated in place. Safe to call when no graph was ever built.
func (s *StreamSource) EnsureResumed(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.audioCtx != nil && s.audioCtx.State() == ContextSuspended {
		if err := s.audioCtx.Resume(ctx); err != nil {
			s.logger.Debug("Audio context resume failed.", zap.Error(err))
		}
	}
	if s.element != nil && !s.element.Playing() {
		s.element.Play()
	}
}

// Reset drops the cached graph so the next GetStream rebuilds it. Tracks on
// the old stream are ended.
func (s *StreamSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		s.stream.StopAll()
	}
	if s.audioCtx != nil {
		_ = s.audioCtx.Close()
	}
	s.stream = nil
	s.audioCtx = nil
	s.element = nil
}
