// internal/media/track.go
package media

import (
	"sync"

	"github.com/google/uuid"
)

// TrackState mirrors MediaStreamTrack.readyState.
type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackEnded TrackState = "ended"
)

// Track is a structural stand-in for MediaStreamTrack. It carries exactly the
// surface the application inspects: kind, enabled, muted and readyState. A
// track is owned by the Stream it was added to.
type Track struct {
	mu      sync.Mutex
	id      string
	kind    string
	label   string
	enabled bool
	muted   bool
	state   TrackState
}

// NewAudioTrack returns a live, enabled, unmuted audio track.
func NewAudioTrack(label string) *Track {
	return &Track{
		id:      uuid.New().String(),
		kind:    "audio",
		label:   label,
		enabled: true,
		state:   TrackLive,
	}
}

func (t *Track) ID() string    { return t.id }
func (t *Track) Kind() string  { return t.kind }
func (t *Track) Label() string { return t.label }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = v
}

func (t *Track) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *Track) ReadyState() TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stop ends the track. Idempotent: stopping an ended track is a no-op.
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = TrackEnded
}
