// internal/media/nodes.go
package media

import "sync"

// Constant "signal present" levels reported by the analyser stub. The
// application gates recording-start on perceiving nonzero microphone input;
// a silent buffer would deadlock it waiting for level.
const (
	byteTimeDomainLevel  = 200
	floatTimeDomainLevel = 0.1
	byteFrequencyLevel   = 128
	floatFrequencyLevel  = -60
)

// Node is the connectable surface shared by every graph node stub. Connect
// records an edge for inspection only; no signal flows through the graph.
type Node interface {
	Connect(dst Node)
	Disconnect()
}

type baseNode struct {
	mu    sync.Mutex
	edges []Node
}

func (n *baseNode) Connect(dst Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edges = append(n.edges, dst)
}

func (n *baseNode) Disconnect() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edges = nil
}

func (n *baseNode) connections() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.edges)
}

// Param mirrors AudioParam to the extent the application touches it
// (reading and assigning .value).
type Param struct {
	Value float64
}

// AnalyserNode fills caller buffers with constant levels. When it wraps an
// analyser from an underlying context it calls through first, so any native
// behavior still runs before the contents are overwritten.
type AnalyserNode struct {
	baseNode
	FFTSize int
	inner   *AnalyserNode
}

func newAnalyserNode() *AnalyserNode {
	return &AnalyserNode{FFTSize: 2048}
}

// FrequencyBinCount mirrors the half-FFT-size property.
func (a *AnalyserNode) FrequencyBinCount() int { return a.FFTSize / 2 }

func (a *AnalyserNode) GetByteTimeDomainData(buf []byte) {
	if a.inner != nil {
		a.inner.GetByteTimeDomainData(buf)
	}
	for i := range buf {
		buf[i] = byteTimeDomainLevel
	}
}

func (a *AnalyserNode) GetFloatTimeDomainData(buf []float32) {
	if a.inner != nil {
		a.inner.GetFloatTimeDomainData(buf)
	}
	for i := range buf {
		buf[i] = floatTimeDomainLevel
	}
}

func (a *AnalyserNode) GetByteFrequencyData(buf []byte) {
	if a.inner != nil {
		a.inner.GetByteFrequencyData(buf)
	}
	for i := range buf {
		buf[i] = byteFrequencyLevel
	}
}

func (a *AnalyserNode) GetFloatFrequencyData(buf []float32) {
	if a.inner != nil {
		a.inner.GetFloatFrequencyData(buf)
	}
	for i := range buf {
		buf[i] = floatFrequencyLevel
	}
}

// OscillatorNode drives the synthetic-tone path of the stream graph.
type OscillatorNode struct {
	baseNode
	mu        sync.Mutex
	Type      string
	Frequency *Param
	started   bool
	stopped   bool
}

func newOscillatorNode() *OscillatorNode {
	return &OscillatorNode{
		Type:      "sine",
		Frequency: &Param{Value: 440},
	}
}

func (o *OscillatorNode) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = true
}

func (o *OscillatorNode) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
}

// Started reports whether Start was called; the graph builder asserts on it.
func (o *OscillatorNode) Started() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started && !o.stopped
}

// StreamDestinationNode mirrors MediaStreamAudioDestinationNode: the graph
// terminus that exposes a live stream.
type StreamDestinationNode struct {
	baseNode
	stream *Stream
}

func newStreamDestinationNode() *StreamDestinationNode {
	return &StreamDestinationNode{
		stream: NewStream(NewAudioTrack("Synthetic Audio")),
	}
}

// Stream returns the destination's stream.
func (d *StreamDestinationNode) Stream() *Stream { return d.stream }

// StreamSourceNode mirrors MediaStreamAudioSourceNode.
type StreamSourceNode struct {
	baseNode
	stream *Stream
}

// ElementSourceNode mirrors MediaElementAudioSourceNode.
type ElementSourceNode struct {
	baseNode
	element *AudioElement
}

// ScriptProcessorNode exists purely for API-shape compatibility with older
// level-metering code paths.
type ScriptProcessorNode struct {
	baseNode
	BufferSize    int
	InputChannels int
	OutputChans   int
}
