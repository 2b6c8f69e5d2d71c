// internal/media/recorder.go
package media

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RecorderState mirrors MediaRecorder.state.
type RecorderState string

const (
	RecInactive  RecorderState = "inactive"
	RecRecording RecorderState = "recording"
	RecPaused    RecorderState = "paused"
)

// RecorderOptions configure a Recorder.
type RecorderOptions struct {
	// MIMEType is the declared recording type exposed to the application.
	MIMEType string
	// Blob produces the final recording payload. The session memoizes it, so
	// every consumer observes the same bytes regardless of how often the
	// recorder flushes.
	Blob   func() []byte
	Logger *zap.Logger
}

// Recorder emulates MediaRecorder's four-operation state machine over a
// synthetic stream:
//
//	inactive -> recording -> (paused <-> recording) -> inactive
//
// Misuse (double start, stop while inactive) is silently ignored, matching
// native MediaRecorder tolerance: production code calls these defensively.
//
// Event delivery is synchronous and happens while the recorder's lock is
// held, which is what guarantees the start/dataavailable/stop ordering a
// single-threaded page observes from the native API. Listeners must not call
// back into the recorder.
type Recorder struct {
	mu       sync.Mutex
	state    RecorderState
	mimeType string
	stream   *Stream
	emitter  *Emitter
	blobFn   func() []byte
	logger   *zap.Logger

	// Slicing handle; exists only while state is recording and a timeslice
	// was requested. Cleared on stop and pause so no emission dangles after
	// the state has moved on.
	timeslice time.Duration
	sliceDone chan struct{}
}

// NewRecorder builds an inactive recorder over the given stream.
func NewRecorder(stream *Stream, opts RecorderOptions) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mime := opts.MIMEType
	if mime == "" {
		mime = "audio/wav"
	}
	blob := opts.Blob
	if blob == nil {
		blob = func() []byte { return nil }
	}
	return &Recorder{
		state:    RecInactive,
		mimeType: mime,
		stream:   stream,
		emitter:  NewEmitter(),
		blobFn:   blob,
		logger:   logger.Named("recorder"),
	}
}

// State returns the current state.
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// MIMEType returns the declared recording type.
func (r *Recorder) MIMEType() string { return r.mimeType }

// Stream returns the stream the recorder was constructed over.
func (r *Recorder) Stream() *Stream { return r.stream }

// AddEventListener registers a listener for one of the recorder events.
func (r *Recorder) AddEventListener(eventType string, h Handler) {
	r.emitter.AddEventListener(eventType, h)
}

// SetHandler installs the on<event> slot handler for an event type.
func (r *Recorder) SetHandler(eventType string, h Handler) {
	r.emitter.SetHandler(eventType, h)
}

// Start begins recording. A no-op unless inactive. When timeslice is
// positive, interim dataavailable events carrying empty placeholder chunks
// are emitted at that cadence while recording, matching the native interim
// chunk behavior.
func (r *Recorder) Start(timeslice time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RecInactive {
		r.logger.Debug("start ignored: recorder not inactive", zap.String("state", string(r.state)))
		return
	}
	r.state = RecRecording
	r.timeslice = timeslice
	r.emitter.Emit(Event{Type: EventStart})
	if timeslice > 0 {
		r.startSlicingLocked()
	}
}

// Stop finalizes the recording. A no-op while inactive. The final flush is
// unconditional: exactly one non-empty dataavailable precedes the single
// stop event, regardless of whether periodic slicing ever fired. Upload code
// depends on always receiving exactly one non-empty payload.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == RecInactive {
		r.logger.Debug("stop ignored: recorder already inactive")
		return
	}
	r.stopSlicingLocked()

	blob := r.blobFn()
	r.emitter.Emit(Event{Type: EventDataAvailable, Data: blob})
	r.state = RecInactive
	r.emitter.Emit(Event{Type: EventStop})
}

// Pause suspends recording. A no-op unless recording.
func (r *Recorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RecRecording {
		return
	}
	r.stopSlicingLocked()
	r.state = RecPaused
	r.emitter.Emit(Event{Type: EventPause})
}

// Resume continues a paused recording. A no-op unless paused. Periodic
// slicing restarts when a timeslice was requested at Start.
func (r *Recorder) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RecPaused {
		return
	}
	r.state = RecRecording
	r.emitter.Emit(Event{Type: EventResume})
	if r.timeslice > 0 {
		r.startSlicingLocked()
	}
}

// RequestData emits the current payload without changing state. A no-op
// while inactive.
func (r *Recorder) RequestData() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == RecInactive {
		return
	}
	r.emitter.Emit(Event{Type: EventDataAvailable, Data: r.blobFn()})
}

// startSlicingLocked spawns the periodic interim-chunk emitter. Caller holds
// r.mu.
func (r *Recorder) startSlicingLocked() {
	done := make(chan struct{})
	r.sliceDone = done
	ticker := time.NewTicker(r.timeslice)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				r.emitSlice(done)
			}
		}
	}()
}

// emitSlice delivers one interim chunk if the recorder is still recording
// and this slicing handle is still current. A tick that raced a stop or
// pause is dropped here.
func (r *Recorder) emitSlice(done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RecRecording || r.sliceDone != done {
		return
	}
	r.emitter.Emit(Event{Type: EventDataAvailable, Data: []byte{}})
}

// stopSlicingLocked cancels any scheduled slicing. Caller holds r.mu.
func (r *Recorder) stopSlicingLocked() {
	if r.sliceDone != nil {
		close(r.sliceDone)
		r.sliceDone = nil
	}
}
