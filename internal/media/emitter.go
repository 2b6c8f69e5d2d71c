// internal/media/emitter.go
package media

import "sync"

// Recorder event vocabulary. Fixed; the emitter rejects nothing else but the
// recorder never emits outside this set.
const (
	EventStart         = "start"
	EventDataAvailable = "dataavailable"
	EventPause         = "pause"
	EventResume        = "resume"
	EventStop          = "stop"
)

// Event is what listeners receive. Data is non-nil only for dataavailable.
type Event struct {
	Type string
	Data []byte
}

// Handler consumes recorder events.
type Handler func(Event)

// Emitter is a typed observer over the recorder's event vocabulary. It
// honors both listener registration (addEventListener) and single-slot
// handler assignment (the on<event> property style); production code uses
// either.
type Emitter struct {
	mu        sync.Mutex
	listeners map[string][]Handler
	slots     map[string]Handler
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		listeners: make(map[string][]Handler),
		slots:     make(map[string]Handler),
	}
}

// AddEventListener appends a listener for the event type.
func (e *Emitter) AddEventListener(eventType string, h Handler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[eventType] = append(e.listeners[eventType], h)
}

// SetHandler installs (or clears, with nil) the single on<event> slot.
func (e *Emitter) SetHandler(eventType string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h == nil {
		delete(e.slots, eventType)
		return
	}
	e.slots[eventType] = h
}

// Emit delivers the event to the slot handler first, then to listeners in
// registration order, synchronously on the caller's goroutine. Ordering
// across Emit calls is therefore the recorder's call ordering.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	slot := e.slots[ev.Type]
	handlers := append([]Handler(nil), e.listeners[ev.Type]...)
	e.mu.Unlock()

	if slot != nil {
		slot(ev)
	}
	for _, h := range handlers {
		h(ev)
	}
}
