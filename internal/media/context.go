// internal/media/context.go
package media

import (
	"context"
	"sync"
)

// ContextState mirrors AudioContext.state.
type ContextState string

const (
	ContextSuspended ContextState = "suspended"
	ContextRunning   ContextState = "running"
	ContextClosed    ContextState = "closed"
)

// Capabilities is the node-construction surface the application exercises on
// an AudioContext. Patching happens behind this interface instead of mutating
// shared prototypes: a patched context wraps whatever original capability
// exists and installs a synthetic one where none does.
type Capabilities interface {
	CreateAnalyser() *AnalyserNode
	CreateOscillator() *OscillatorNode
	CreateMediaStreamDestination() *StreamDestinationNode
	CreateMediaStreamSource(s *Stream) *StreamSourceNode
	CreateMediaElementSource(e *AudioElement) *ElementSourceNode
	CreateScriptProcessor(bufferSize, inputChannels, outputChannels int) *ScriptProcessorNode
	State() ContextState
	Resume(ctx context.Context) error
	Close() error
}

// AudioContext is the synthetic context. Contexts start suspended, matching
// browser autoplay policy, and must be resumed before the graph is considered
// live.
type AudioContext struct {
	mu         sync.Mutex
	state      ContextState
	SampleRate float64

	// patched marks a context that already carries the facade overrides, so
	// re-installation is a no-op. The original harness used a __patched tag
	// on the constructor for the same purpose.
	patched bool
	inner   Capabilities
}

var _ Capabilities = (*AudioContext)(nil)

// NewAudioContext returns a suspended synthetic context.
func NewAudioContext() *AudioContext {
	return &AudioContext{state: ContextSuspended, SampleRate: 48000}
}

// Patch decorates an existing context with the facade behavior. Patching an
// already-patched context returns it unchanged; this is the idempotence
// guarantee exercised by every PatchInstaller invocation.
func Patch(inner Capabilities) *AudioContext {
	if ac, ok := inner.(*AudioContext); ok {
		ac.mu.Lock()
		ac.patched = true
		ac.mu.Unlock()
		return ac
	}
	out := NewAudioContext()
	out.inner = inner
	out.patched = true
	return out
}

// Patched reports whether the facade overrides are in place.
func (c *AudioContext) Patched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.patched
}

// CreateAnalyser returns an analyser whose buffer reads always show signal.
// Where an original context exists its analyser is created first and called
// through before the buffers are overwritten.
func (c *AudioContext) CreateAnalyser() *AnalyserNode {
	node := newAnalyserNode()
	if c.inner != nil {
		node.inner = c.inner.CreateAnalyser()
	}
	return node
}

func (c *AudioContext) CreateOscillator() *OscillatorNode {
	if c.inner != nil {
		return c.inner.CreateOscillator()
	}
	return newOscillatorNode()
}

func (c *AudioContext) CreateMediaStreamDestination() *StreamDestinationNode {
	if c.inner != nil {
		return c.inner.CreateMediaStreamDestination()
	}
	return newStreamDestinationNode()
}

func (c *AudioContext) CreateMediaStreamSource(s *Stream) *StreamSourceNode {
	return &StreamSourceNode{stream: s}
}

func (c *AudioContext) CreateMediaElementSource(e *AudioElement) *ElementSourceNode {
	return &ElementSourceNode{element: e}
}

func (c *AudioContext) CreateScriptProcessor(bufferSize, inputChannels, outputChannels int) *ScriptProcessorNode {
	return &ScriptProcessorNode{
		BufferSize:    bufferSize,
		InputChannels: inputChannels,
		OutputChans:   outputChannels,
	}
}

// State returns the context state.
func (c *AudioContext) State() ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume transitions a suspended context to running. Resuming a running
// context is a no-op; resuming a closed one stays closed.
func (c *AudioContext) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ContextSuspended {
		c.state = ContextRunning
	}
	return nil
}

// Close tears the context down.
func (c *AudioContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ContextClosed
	return nil
}
