// internal/harness/bind.go
package harness

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/voxtest/fauxmic/internal/media"
)

// patchMarker tags constructors the installer has already replaced so a
// repeat install never stacks overrides.
const patchMarker = "__patched"

// install wires the session's media stubs onto the VM's global scope as the
// standard browser APIs, plus the window-scoped driver entry points. Runs on
// the event loop.
func (e *Environment) install(vm *goja.Runtime) error {
	global := vm.GlobalObject()

	// window and self alias the global object so window.X and bare X agree.
	if err := global.Set("window", global); err != nil {
		return fmt.Errorf("failed to set window global: %w", err)
	}
	_ = global.Set("self", global)

	e.installMediaStream(vm, global)
	e.installAudioContext(vm, global)
	e.installNavigator(vm, global)
	e.installRecorderClass(vm, global)
	e.installDriverHooks(vm, global)

	e.logger.Debug("Media patches installed.", zap.String("session_id", e.session.ID()))
	return nil
}

func defined(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

// alreadyPatched reports whether a global constructor carries our marker.
func alreadyPatched(vm *goja.Runtime, v goja.Value) bool {
	if !defined(v) {
		return false
	}
	obj := v.ToObject(vm)
	return obj != nil && defined(obj.Get(patchMarker)) && obj.Get(patchMarker).ToBoolean()
}

// installMediaStream polyfills the MediaStream constructor when absent.
func (e *Environment) installMediaStream(vm *goja.Runtime, global *goja.Object) {
	if defined(global.Get("MediaStream")) {
		return
	}
	ctor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		return e.wrapStream(vm, media.NewStream())
	}).(*goja.Object)
	_ = ctor.Set(patchMarker, true)
	_ = global.Set("MediaStream", ctor)
}

// installAudioContext ensures an AudioContext constructor exists and carries
// the facade behavior. A vendor-prefixed constructor is aliased when that is
// all the page has; re-installation over our own constructor is a no-op.
func (e *Environment) installAudioContext(vm *goja.Runtime, global *goja.Object) {
	existing := global.Get("AudioContext")
	if !defined(existing) {
		existing = global.Get("webkitAudioContext")
	}
	if alreadyPatched(vm, existing) {
		return
	}

	ctor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		ac := media.Patch(media.NewAudioContext())
		e.bindAudioContext(vm, call.This, ac)
		return call.This
	}).(*goja.Object)
	_ = ctor.Set(patchMarker, true)
	_ = global.Set("AudioContext", ctor)
	_ = global.Set("webkitAudioContext", ctor)
}

// installNavigator overrides navigator.mediaDevices and navigator.permissions.
func (e *Environment) installNavigator(vm *goja.Runtime, global *goja.Object) {
	var nav *goja.Object
	if v := global.Get("navigator"); defined(v) {
		nav = v.ToObject(vm)
	} else {
		nav = vm.NewObject()
		_ = global.Set("navigator", nav)
	}

	md := vm.NewObject()
	_ = md.Set("getUserMedia", func(call goja.FunctionCall) goja.Value {
		constraints := media.Constraints{Audio: true}
		if arg := call.Argument(0); defined(arg) {
			c := arg.ToObject(vm)
			constraints.Audio = c.Get("audio") != nil && c.Get("audio").ToBoolean()
			constraints.Video = c.Get("video") != nil && c.Get("video").ToBoolean()
		}
		promise, resolve, reject := vm.NewPromise()
		stream, err := e.session.Devices().GetUserMedia(context.Background(), constraints)
		if err != nil {
			reject(vm.NewGoError(err))
		} else {
			resolve(e.wrapStream(vm, stream))
		}
		return vm.ToValue(promise)
	})
	_ = md.Set("enumerateDevices", func(call goja.FunctionCall) goja.Value {
		promise, resolve, _ := vm.NewPromise()
		devices, _ := e.session.Devices().EnumerateDevices(context.Background())
		out := make([]interface{}, len(devices))
		for i, d := range devices {
			entry := vm.NewObject()
			_ = entry.Set("deviceId", d.DeviceID)
			_ = entry.Set("kind", d.Kind)
			_ = entry.Set("label", d.Label)
			_ = entry.Set("groupId", d.GroupID)
			out[i] = entry
		}
		resolve(vm.ToValue(out))
		return vm.ToValue(promise)
	})
	_ = md.Set(patchMarker, true)
	_ = nav.Set("mediaDevices", md)

	perms := vm.NewObject()
	_ = perms.Set("query", func(call goja.FunctionCall) goja.Value {
		name := ""
		if arg := call.Argument(0); defined(arg) {
			name = arg.ToObject(vm).Get("name").String()
		}
		promise, resolve, _ := vm.NewPromise()
		status := vm.NewObject()
		_ = status.Set("state", string(e.session.Devices().QueryPermission(name)))
		_ = status.Set("onchange", goja.Null())
		resolve(status)
		return vm.ToValue(promise)
	})
	_ = nav.Set("permissions", perms)
}

// installRecorderClass installs the MediaRecorder emulation. When the engine
// has a native recorder and the session does not ask for the shim, whatever
// binding exists is left alone.
func (e *Environment) installRecorderClass(vm *goja.Runtime, global *goja.Object) {
	existing := global.Get("MediaRecorder")
	if defined(existing) && !e.session.opts.InstallRecorder {
		return
	}
	if alreadyPatched(vm, existing) {
		return
	}

	ctor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		mimeType := ""
		if opts := call.Argument(1); defined(opts) {
			if mt := opts.ToObject(vm).Get("mimeType"); defined(mt) {
				mimeType = mt.String()
			}
		}
		rec := e.session.NewRecorder(context.Background(), mimeType)
		e.bindRecorder(vm, call.This, rec, call.Argument(0))
		return call.This
	}).(*goja.Object)
	_ = ctor.Set(patchMarker, true)
	_ = ctor.Set("isTypeSupported", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(true)
	})
	_ = global.Set("MediaRecorder", ctor)
}

// installDriverHooks exposes the window-scoped entry points the test driver
// calls between steps. These are the only non-standard surface.
func (e *Environment) installDriverHooks(vm *goja.Runtime, global *goja.Object) {
	_ = global.Set("__fauxmicReapply", func(call goja.FunctionCall) goja.Value {
		if err := e.install(vm); err != nil {
			e.logger.Warn("Reapply failed.", zap.Error(err))
			return vm.ToValue(false)
		}
		return vm.ToValue(true)
	})
	_ = global.Set("__fauxmicResumePlayback", func(call goja.FunctionCall) goja.Value {
		e.session.Source().EnsureResumed(context.Background())
		return vm.ToValue(true)
	})
	_ = global.Set("__fauxmicBlob", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(base64.StdEncoding.EncodeToString(e.session.Blob()))
	})
}

// wrapStream exposes a media.Stream as a MediaStream-shaped object.
func (e *Environment) wrapStream(vm *goja.Runtime, stream *media.Stream) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("id", stream.ID())
	_ = obj.Set("__stream", stream)

	wrapTracks := func(tracks []*media.Track) goja.Value {
		out := make([]interface{}, len(tracks))
		for i, t := range tracks {
			out[i] = e.wrapTrack(vm, t)
		}
		return vm.ToValue(out)
	}
	_ = obj.Set("getTracks", func(call goja.FunctionCall) goja.Value {
		return wrapTracks(stream.GetTracks())
	})
	_ = obj.Set("getAudioTracks", func(call goja.FunctionCall) goja.Value {
		return wrapTracks(stream.GetAudioTracks())
	})
	_ = obj.Set("addTrack", func(call goja.FunctionCall) goja.Value {
		if t := exportTrack(call.Argument(0)); t != nil {
			stream.AddTrack(t)
		}
		return goja.Undefined()
	})
	_ = obj.Set("removeTrack", func(call goja.FunctionCall) goja.Value {
		if t := exportTrack(call.Argument(0)); t != nil {
			stream.RemoveTrack(t)
		}
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty("active",
		vm.ToValue(func(call goja.FunctionCall) goja.Value { return vm.ToValue(stream.Active()) }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return obj
}

func exportTrack(v goja.Value) *media.Track {
	if !defined(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	inner := obj.Get("__track")
	if !defined(inner) {
		return nil
	}
	t, _ := inner.Export().(*media.Track)
	return t
}

// wrapTrack exposes a media.Track as a MediaStreamTrack-shaped object with
// live readyState/muted/enabled views.
func (e *Environment) wrapTrack(vm *goja.Runtime, t *media.Track) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("id", t.ID())
	_ = obj.Set("kind", t.Kind())
	_ = obj.Set("label", t.Label())
	_ = obj.Set("__track", t)
	_ = obj.Set("stop", func(call goja.FunctionCall) goja.Value {
		t.Stop()
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty("readyState",
		vm.ToValue(func(call goja.FunctionCall) goja.Value { return vm.ToValue(string(t.ReadyState())) }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("muted",
		vm.ToValue(func(call goja.FunctionCall) goja.Value { return vm.ToValue(t.Muted()) }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("enabled",
		vm.ToValue(func(call goja.FunctionCall) goja.Value { return vm.ToValue(t.Enabled()) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			t.SetEnabled(call.Argument(0).ToBoolean())
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	return obj
}

// bindAudioContext populates an AudioContext-shaped object over the facade.
// Every node-creation method the production code may call exists and returns
// a stable, non-throwing stub.
func (e *Environment) bindAudioContext(vm *goja.Runtime, obj *goja.Object, ac *media.AudioContext) {
	_ = obj.Set("sampleRate", ac.SampleRate)
	_ = obj.DefineAccessorProperty("state",
		vm.ToValue(func(call goja.FunctionCall) goja.Value { return vm.ToValue(string(ac.State())) }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	_ = obj.Set("resume", func(call goja.FunctionCall) goja.Value {
		promise, resolve, _ := vm.NewPromise()
		_ = ac.Resume(context.Background())
		resolve(goja.Undefined())
		return vm.ToValue(promise)
	})
	_ = obj.Set("close", func(call goja.FunctionCall) goja.Value {
		promise, resolve, _ := vm.NewPromise()
		_ = ac.Close()
		resolve(goja.Undefined())
		return vm.ToValue(promise)
	})

	_ = obj.Set("createAnalyser", func(call goja.FunctionCall) goja.Value {
		return e.wrapAnalyser(vm, ac.CreateAnalyser())
	})
	_ = obj.Set("createOscillator", func(call goja.FunctionCall) goja.Value {
		return e.wrapOscillator(vm, ac.CreateOscillator())
	})
	_ = obj.Set("createMediaStreamDestination", func(call goja.FunctionCall) goja.Value {
		dest := ac.CreateMediaStreamDestination()
		destObj := vm.NewObject()
		setNodeMethods(vm, destObj, dest)
		_ = destObj.Set("stream", e.wrapStream(vm, dest.Stream()))
		return destObj
	})
	_ = obj.Set("createMediaStreamSource", func(call goja.FunctionCall) goja.Value {
		node := ac.CreateMediaStreamSource(nil)
		srcObj := vm.NewObject()
		setNodeMethods(vm, srcObj, node)
		return srcObj
	})
	_ = obj.Set("createMediaElementSource", func(call goja.FunctionCall) goja.Value {
		node := ac.CreateMediaElementSource(nil)
		srcObj := vm.NewObject()
		setNodeMethods(vm, srcObj, node)
		return srcObj
	})
	_ = obj.Set("createScriptProcessor", func(call goja.FunctionCall) goja.Value {
		node := ac.CreateScriptProcessor(
			int(call.Argument(0).ToInteger()),
			int(call.Argument(1).ToInteger()),
			int(call.Argument(2).ToInteger()))
		spObj := vm.NewObject()
		setNodeMethods(vm, spObj, node)
		_ = spObj.Set("bufferSize", node.BufferSize)
		_ = spObj.Set("onaudioprocess", goja.Null())
		return spObj
	})
}

// setNodeMethods installs connect/disconnect. Connect records the edge on
// the Go node when the destination is one of ours, and returns the
// destination for chaining either way.
func setNodeMethods(vm *goja.Runtime, obj *goja.Object, node media.Node) {
	_ = obj.Set("__node", node)
	_ = obj.Set("connect", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if dstObj, ok := arg.(*goja.Object); ok {
			if inner := dstObj.Get("__node"); defined(inner) {
				if dst, ok := inner.Export().(media.Node); ok {
					node.Connect(dst)
				}
			}
		}
		return arg
	})
	_ = obj.Set("disconnect", func(call goja.FunctionCall) goja.Value {
		node.Disconnect()
		return goja.Undefined()
	})
}

// wrapAnalyser exposes an analyser node whose get*Data methods fill the
// caller's typed array in place.
func (e *Environment) wrapAnalyser(vm *goja.Runtime, node *media.AnalyserNode) *goja.Object {
	obj := vm.NewObject()
	setNodeMethods(vm, obj, node)
	_ = obj.Set("fftSize", node.FFTSize)
	_ = obj.Set("frequencyBinCount", node.FrequencyBinCount())
	_ = obj.Set("smoothingTimeConstant", 0.8)

	fillBytes := func(call goja.FunctionCall, fill func([]byte)) goja.Value {
		if buf := typedArrayBytes(vm, call.Argument(0)); buf != nil {
			fill(buf)
		}
		return goja.Undefined()
	}
	fillFloats := func(call goja.FunctionCall, fill func([]float32)) goja.Value {
		buf := typedArrayBytes(vm, call.Argument(0))
		if buf == nil {
			return goja.Undefined()
		}
		scratch := make([]float32, len(buf)/4)
		fill(scratch)
		for i, f := range scratch {
			putFloat32LE(buf[i*4:], f)
		}
		return goja.Undefined()
	}

	_ = obj.Set("getByteTimeDomainData", func(call goja.FunctionCall) goja.Value {
		return fillBytes(call, node.GetByteTimeDomainData)
	})
	_ = obj.Set("getByteFrequencyData", func(call goja.FunctionCall) goja.Value {
		return fillBytes(call, node.GetByteFrequencyData)
	})
	_ = obj.Set("getFloatTimeDomainData", func(call goja.FunctionCall) goja.Value {
		return fillFloats(call, node.GetFloatTimeDomainData)
	})
	_ = obj.Set("getFloatFrequencyData", func(call goja.FunctionCall) goja.Value {
		return fillFloats(call, node.GetFloatFrequencyData)
	})
	return obj
}

// wrapOscillator exposes an oscillator node with a synced frequency param.
func (e *Environment) wrapOscillator(vm *goja.Runtime, node *media.OscillatorNode) *goja.Object {
	obj := vm.NewObject()
	setNodeMethods(vm, obj, node)
	_ = obj.Set("type", node.Type)

	freq := vm.NewObject()
	_ = freq.DefineAccessorProperty("value",
		vm.ToValue(func(call goja.FunctionCall) goja.Value { return vm.ToValue(node.Frequency.Value) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			node.Frequency.Value = call.Argument(0).ToFloat()
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = obj.Set("frequency", freq)

	_ = obj.Set("start", func(call goja.FunctionCall) goja.Value {
		node.Start()
		return goja.Undefined()
	})
	_ = obj.Set("stop", func(call goja.FunctionCall) goja.Value {
		node.Stop()
		return goja.Undefined()
	})
	return obj
}

// typedArrayBytes returns the backing bytes of a JS typed array, shared with
// the VM so in-place fills are visible to the caller.
func typedArrayBytes(vm *goja.Runtime, v goja.Value) []byte {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	bufVal := obj.Get("buffer")
	if !defined(bufVal) {
		return nil
	}
	ab, ok := bufVal.Export().(goja.ArrayBuffer)
	if !ok {
		return nil
	}
	return ab.Bytes()
}

func putFloat32LE(b []byte, f float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
}

// bindRecorder populates a MediaRecorder-shaped object over the emulation.
// Events dispatch asynchronously on the loop, honoring both addEventListener
// registration and on<event> property assignment.
func (e *Environment) bindRecorder(vm *goja.Runtime, obj *goja.Object, rec *media.Recorder, streamArg goja.Value) {
	_ = obj.Set("mimeType", rec.MIMEType())
	if defined(streamArg) {
		_ = obj.Set("stream", streamArg)
	} else {
		_ = obj.Set("stream", e.wrapStream(vm, rec.Stream()))
	}
	_ = obj.DefineAccessorProperty("state",
		vm.ToValue(func(call goja.FunctionCall) goja.Value { return vm.ToValue(string(rec.State())) }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	listeners := make(map[string][]goja.Value)
	_ = obj.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		eventType := call.Argument(0).String()
		if fn := call.Argument(1); defined(fn) {
			listeners[eventType] = append(listeners[eventType], fn)
		}
		return goja.Undefined()
	})
	_ = obj.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		eventType := call.Argument(0).String()
		target := call.Argument(1)
		kept := listeners[eventType][:0]
		for _, fn := range listeners[eventType] {
			if !fn.StrictEquals(target) {
				kept = append(kept, fn)
			}
		}
		listeners[eventType] = kept
		return goja.Undefined()
	})

	// One Go-side handler per event type; delivery happens as a later loop
	// job so handlers never reenter the recorder's lock.
	dispatch := func(eventType string) media.Handler {
		return func(ev media.Event) {
			data := ev.Data
			e.loop.RunOnLoop(func(vm *goja.Runtime) {
				evObj := vm.NewObject()
				_ = evObj.Set("type", eventType)
				if eventType == media.EventDataAvailable {
					_ = evObj.Set("data", e.wrapBlob(vm, data, rec.MIMEType()))
				}
				if slot := obj.Get("on" + eventType); defined(slot) {
					if fn, ok := goja.AssertFunction(slot); ok {
						if _, err := fn(obj, evObj); err != nil {
							e.logger.Debug("Recorder event handler threw.", zap.String("event", eventType), zap.Error(err))
						}
					}
				}
				for _, l := range listeners[eventType] {
					if fn, ok := goja.AssertFunction(l); ok {
						if _, err := fn(obj, evObj); err != nil {
							e.logger.Debug("Recorder event listener threw.", zap.String("event", eventType), zap.Error(err))
						}
					}
				}
			})
		}
	}
	for _, et := range []string{media.EventStart, media.EventDataAvailable, media.EventPause, media.EventResume, media.EventStop} {
		rec.AddEventListener(et, dispatch(et))
	}

	_ = obj.Set("start", func(call goja.FunctionCall) goja.Value {
		var timeslice time.Duration
		if arg := call.Argument(0); defined(arg) {
			timeslice = time.Duration(arg.ToInteger()) * time.Millisecond
		}
		rec.Start(timeslice)
		return goja.Undefined()
	})
	_ = obj.Set("stop", func(call goja.FunctionCall) goja.Value {
		rec.Stop()
		return goja.Undefined()
	})
	_ = obj.Set("pause", func(call goja.FunctionCall) goja.Value {
		rec.Pause()
		return goja.Undefined()
	})
	_ = obj.Set("resume", func(call goja.FunctionCall) goja.Value {
		rec.Resume()
		return goja.Undefined()
	})
	_ = obj.Set("requestData", func(call goja.FunctionCall) goja.Value {
		rec.RequestData()
		return goja.Undefined()
	})
}

// wrapBlob builds a Blob-shaped payload object: size, type, arrayBuffer().
func (e *Environment) wrapBlob(vm *goja.Runtime, data []byte, mimeType string) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("size", len(data))
	_ = obj.Set("type", mimeType)
	_ = obj.Set("arrayBuffer", func(call goja.FunctionCall) goja.Value {
		promise, resolve, _ := vm.NewPromise()
		resolve(vm.ToValue(vm.NewArrayBuffer(data)))
		return vm.ToValue(promise)
	})
	return obj
}
