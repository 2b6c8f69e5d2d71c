// internal/media/recorder_test.go
package media

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// The slicing goroutine must never outlive the recorder's active states.
	goleak.VerifyTestMain(m)
}

// eventLog collects emitted events in order.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handler() Handler {
	return func(ev Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, ev)
	}
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func newTestRecorder(blob []byte) (*Recorder, *eventLog) {
	log := &eventLog{}
	rec := NewRecorder(NewStream(NewAudioTrack("test")), RecorderOptions{
		MIMEType: "audio/wav",
		Blob:     func() []byte { return blob },
	})
	for _, et := range []string{EventStart, EventDataAvailable, EventPause, EventResume, EventStop} {
		rec.AddEventListener(et, log.handler())
	}
	return rec, log
}

func TestRecorderLifecycle(t *testing.T) {
	t.Run("start then stop emits start, dataavailable, stop exactly once each", func(t *testing.T) {
		rec, log := newTestRecorder([]byte("payload"))

		rec.Start(0)
		require.Equal(t, RecRecording, rec.State())
		rec.Stop()
		require.Equal(t, RecInactive, rec.State())

		assert.Equal(t, []string{EventStart, EventDataAvailable, EventStop}, log.types())
	})

	t.Run("final flush carries the blob even without slicing", func(t *testing.T) {
		blob := []byte("final-bytes")
		rec, log := newTestRecorder(blob)

		rec.Start(0)
		rec.Stop()

		log.mu.Lock()
		defer log.mu.Unlock()
		require.Len(t, log.events, 3)
		assert.Equal(t, blob, log.events[1].Data)
	})

	t.Run("start while recording is a no-op", func(t *testing.T) {
		rec, log := newTestRecorder(nil)

		rec.Start(0)
		rec.Start(0)
		assert.Equal(t, 1, log.count(EventStart), "no duplicate start event")
		rec.Stop()
	})

	t.Run("stop while inactive is a no-op", func(t *testing.T) {
		rec, log := newTestRecorder(nil)

		rec.Stop()
		assert.Empty(t, log.types())

		rec.Start(0)
		rec.Stop()
		rec.Stop()
		assert.Equal(t, 1, log.count(EventStop), "exactly one stop per transition away from non-inactive")
		assert.Equal(t, 1, log.count(EventDataAvailable), "no blob recomputation on redundant stop")
	})

	t.Run("pause and resume are guarded and emit once", func(t *testing.T) {
		rec, log := newTestRecorder(nil)

		rec.Pause() // inactive: ignored
		rec.Resume()
		assert.Empty(t, log.types())

		rec.Start(0)
		rec.Resume() // recording: ignored
		rec.Pause()
		require.Equal(t, RecPaused, rec.State())
		rec.Pause() // paused: ignored
		rec.Resume()
		require.Equal(t, RecRecording, rec.State())
		rec.Stop()

		assert.Equal(t, 1, log.count(EventPause))
		assert.Equal(t, 1, log.count(EventResume))
	})

	t.Run("stop from paused still flushes", func(t *testing.T) {
		rec, log := newTestRecorder([]byte("x"))

		rec.Start(0)
		rec.Pause()
		rec.Stop()

		assert.Equal(t, []string{EventStart, EventPause, EventDataAvailable, EventStop}, log.types())
	})
}

func TestRecorderRequestData(t *testing.T) {
	t.Run("no-op while inactive", func(t *testing.T) {
		rec, log := newTestRecorder([]byte("x"))
		rec.RequestData()
		assert.Empty(t, log.types())
	})

	t.Run("emits current blob without state change", func(t *testing.T) {
		rec, log := newTestRecorder([]byte("x"))
		rec.Start(0)
		rec.RequestData()
		assert.Equal(t, RecRecording, rec.State())
		assert.Equal(t, 1, log.count(EventDataAvailable))
		rec.Stop()
		assert.Equal(t, 2, log.count(EventDataAvailable))
	})
}

func TestRecorderTimeslice(t *testing.T) {
	t.Run("periodic interim chunks plus exactly one final flush", func(t *testing.T) {
		rec, log := newTestRecorder([]byte("full-recording"))

		rec.Start(50 * time.Millisecond)
		time.Sleep(225 * time.Millisecond)
		rec.Stop()

		// ~4 interim ticks plus the unconditional final flush. Timers are
		// coarse under load, so accept a band rather than an exact count.
		n := log.count(EventDataAvailable)
		assert.GreaterOrEqual(t, n, 3, "expected several interim chunks")
		assert.LessOrEqual(t, n, 6)

		// The final flush is the one carrying bytes; interim chunks are
		// empty placeholders.
		log.mu.Lock()
		var withData int
		for _, ev := range log.events {
			if ev.Type == EventDataAvailable && len(ev.Data) > 0 {
				withData++
			}
		}
		log.mu.Unlock()
		assert.Equal(t, 1, withData)

		// No emission after the state left recording.
		time.Sleep(120 * time.Millisecond)
		assert.Equal(t, n, log.count(EventDataAvailable))
	})

	t.Run("pause clears the slicing handle", func(t *testing.T) {
		rec, log := newTestRecorder(nil)

		rec.Start(30 * time.Millisecond)
		time.Sleep(75 * time.Millisecond)
		rec.Pause()
		paused := log.count(EventDataAvailable)

		time.Sleep(90 * time.Millisecond)
		assert.Equal(t, paused, log.count(EventDataAvailable), "no interim chunks while paused")

		rec.Resume()
		time.Sleep(75 * time.Millisecond)
		assert.Greater(t, log.count(EventDataAvailable), paused, "slicing resumes with recording")
		rec.Stop()
	})
}

func TestRecorderHandlerSlot(t *testing.T) {
	t.Run("on<event> slot and listeners both fire, slot first", func(t *testing.T) {
		rec := NewRecorder(NewStream(), RecorderOptions{Blob: func() []byte { return []byte("b") }})

		var order []string
		var mu sync.Mutex
		rec.SetHandler(EventStop, func(Event) {
			mu.Lock()
			order = append(order, "slot")
			mu.Unlock()
		})
		rec.AddEventListener(EventStop, func(Event) {
			mu.Lock()
			order = append(order, "listener")
			mu.Unlock()
		})

		rec.Start(0)
		rec.Stop()
		assert.Equal(t, []string{"slot", "listener"}, order)
	})

	t.Run("slot can be cleared", func(t *testing.T) {
		rec := NewRecorder(NewStream(), RecorderOptions{})
		fired := false
		rec.SetHandler(EventStart, func(Event) { fired = true })
		rec.SetHandler(EventStart, nil)
		rec.Start(0)
		rec.Stop()
		assert.False(t, fired)
	})
}
