// internal/harness/session.go
package harness

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxtest/fauxmic/internal/media"
	"github.com/voxtest/fauxmic/internal/wav"
)

// Options configure a harness session.
type Options struct {
	// FixtureBase64 is an externally supplied audio payload. Empty selects
	// the synthetic-tone path.
	FixtureBase64 string
	// FixtureMIME is the declared type of the fixture payload.
	FixtureMIME string
	// InstallRecorder selects the MediaRecorder emulation. Set for the one
	// engine whose native recorder is absent or unreliable; elsewhere the
	// native implementation records the synthetic stream directly.
	InstallRecorder bool
	Logger          *zap.Logger
}

// Session owns the per-run harness state that would otherwise be scattered
// across window globals: the selected audio payload, the memoized
// recording blob and the synthetic stream. It is created by the test runner
// and torn down with Reset between navigations.
type Session struct {
	mu     sync.Mutex
	id     string
	opts   Options
	logger *zap.Logger

	payload *wav.Payload
	blob    []byte

	source  *media.StreamSource
	devices *media.Devices
}

// NewSession builds a session. The fixture, when present, is decoded once
// here and is immutable for the session's lifetime.
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session")

	var payload *wav.Payload
	if opts.FixtureBase64 != "" {
		p := wav.Wrap(opts.FixtureBase64, opts.FixtureMIME)
		payload = &p
		logger.Debug("Session fixture selected.",
			zap.String("mime_type", p.MIMEType), zap.Int("bytes", len(p.Bytes)))
	}

	source := media.NewStreamSource(payload, logger)
	return &Session{
		id:      uuid.New().String(),
		opts:    opts,
		logger:  logger,
		payload: payload,
		source:  source,
		devices: media.NewDevices(source, logger),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Source returns the synthetic stream source.
func (s *Session) Source() *media.StreamSource { return s.source }

// Devices returns the device and permission facade.
func (s *Session) Devices() *media.Devices { return s.devices }

// Stream returns the session's synthetic stream, building it on first use.
func (s *Session) Stream(ctx context.Context) *media.Stream {
	return s.source.GetStream(ctx)
}

// Blob returns the session recording payload. It is computed at most once:
// the fixture bytes when a fixture was supplied, the default synthetic tone
// otherwise. Every consumer observes the same byte content.
func (s *Session) Blob() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blob == nil {
		if s.payload != nil {
			s.blob = s.payload.Bytes
		} else {
			s.blob = wav.Synthesize(wav.ToneOptions{})
		}
	}
	return s.blob
}

// MIMEType returns the declared type of the session recording.
func (s *Session) MIMEType() string {
	if s.payload != nil {
		return s.payload.MIMEType
	}
	return "audio/wav"
}

// NewRecorder builds a recorder emulation over the session stream, flushing
// the session blob.
func (s *Session) NewRecorder(ctx context.Context, mimeType string) *media.Recorder {
	if mimeType == "" {
		mimeType = s.MIMEType()
	}
	return media.NewRecorder(s.Stream(ctx), media.RecorderOptions{
		MIMEType: mimeType,
		Blob:     s.Blob,
		Logger:   s.logger,
	})
}

// Reset tears down the cached stream and blob, the in-process analogue of a
// full navigation discarding the patched page. The fixture selection
// survives; the next Blob/Stream call rebuilds from it.
func (s *Session) Reset() {
	s.mu.Lock()
	s.blob = nil
	s.mu.Unlock()
	s.source.Reset()
	s.logger.Debug("Session reset.", zap.String("session_id", s.id))
}
