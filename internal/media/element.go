// internal/media/element.go
package media

import (
	"sync"

	"github.com/voxtest/fauxmic/internal/wav"
)

// AudioElement is a minimal looping-audio-element stand-in used when a
// fixture payload drives the stream graph instead of an oscillator.
type AudioElement struct {
	mu      sync.Mutex
	payload wav.Payload
	Loop    bool
	playing bool
}

// NewAudioElement wraps a payload in a loopable element.
func NewAudioElement(p wav.Payload) *AudioElement {
	return &AudioElement{payload: p, Loop: true}
}

// Payload returns the element's audio bytes and declared type.
func (e *AudioElement) Payload() wav.Payload {
	return e.payload
}

// Play marks the element as playing. It never fails; autoplay restrictions
// are an AudioContext concern handled by Resume.
func (e *AudioElement) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = true
}

// Pause halts playback.
func (e *AudioElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
}

// Playing reports playback state.
func (e *AudioElement) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}
