// internal/media/stream.go
package media

import (
	"sync"

	"github.com/google/uuid"
)

// Stream is a structural stand-in for MediaStream: an ordered collection of
// tracks shared by reference between the device facade and every consumer
// holding the stream.
type Stream struct {
	mu     sync.RWMutex
	id     string
	active bool
	tracks []*Track
}

// NewStream builds a stream over the given tracks.
func NewStream(tracks ...*Track) *Stream {
	return &Stream{
		id:     uuid.New().String(),
		active: true,
		tracks: append([]*Track(nil), tracks...),
	}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// GetTracks returns the current track collection.
func (s *Stream) GetTracks() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Track(nil), s.tracks...)
}

// GetAudioTracks returns the current audio tracks.
func (s *Stream) GetAudioTracks() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if t.Kind() == "audio" {
			out = append(out, t)
		}
	}
	return out
}

// AddTrack appends a track. Adding a track that is already present is a no-op,
// matching MediaStream semantics.
func (s *Stream) AddTrack(t *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tracks {
		if existing == t {
			return
		}
	}
	s.tracks = append(s.tracks, t)
}

// RemoveTrack removes a track if present.
func (s *Stream) RemoveTrack(t *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.tracks {
		if existing == t {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return
		}
	}
}

// StopAll ends every track. Used by Session.Reset between navigations.
func (s *Stream) StopAll() {
	for _, t := range s.GetTracks() {
		t.Stop()
	}
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}
