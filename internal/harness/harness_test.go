// internal/harness/harness_test.go
package harness

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/voxtest/fauxmic/internal/wav"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestEnvironment(t *testing.T, opts Options) *Environment {
	t.Helper()
	opts.Logger = zap.NewNop()
	env := NewEnvironment(NewSession(opts), zap.NewNop())
	require.NoError(t, env.Start(context.Background()), "environment must start")
	t.Cleanup(env.Stop)
	return env
}

func TestInstallExposesBrowserGlobals(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})
	ctx := context.Background()

	for _, expr := range []string{
		"typeof navigator.mediaDevices.getUserMedia",
		"typeof navigator.mediaDevices.enumerateDevices",
		"typeof navigator.permissions.query",
		"typeof MediaRecorder",
		"typeof AudioContext",
		"typeof MediaStream",
		"typeof window.__fauxmicReapply",
		"typeof window.__fauxmicResumePlayback",
		"typeof window.__fauxmicBlob",
	} {
		v, err := env.Eval(ctx, expr)
		require.NoError(t, err, "eval %q", expr)
		assert.Equal(t, "function", v, "expr %q", expr)
	}

	v, err := env.Eval(ctx, "AudioContext === webkitAudioContext")
	require.NoError(t, err)
	assert.Equal(t, true, v, "vendor-prefixed alias must share the constructor")
}

func TestGetUserMediaResolvesWithLiveStream(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})
	ctx := context.Background()

	v, err := env.Eval(ctx, `
		navigator.mediaDevices.getUserMedia({ audio: true }).then((stream) => {
			const tracks = stream.getAudioTracks();
			return {
				active: stream.active,
				count: tracks.length,
				kind: tracks[0].kind,
				readyState: tracks[0].readyState,
				muted: tracks[0].muted,
			};
		})
	`)
	require.NoError(t, err)
	res, ok := v.(map[string]interface{})
	require.True(t, ok, "promise result must export as a map, got %T", v)
	assert.Equal(t, true, res["active"])
	assert.EqualValues(t, 1, res["count"])
	assert.Equal(t, "audio", res["kind"])
	assert.Equal(t, "live", res["readyState"])
	assert.Equal(t, false, res["muted"])
}

func TestGetUserMediaReturnsSameStream(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})
	ctx := context.Background()

	v, err := env.Eval(ctx, `
		Promise.all([
			navigator.mediaDevices.getUserMedia({ audio: true }),
			navigator.mediaDevices.getUserMedia({ audio: true }),
		]).then((streams) => streams[0].id === streams[1].id)
	`)
	require.NoError(t, err)
	assert.Equal(t, true, v, "repeated capture must hand out the same stream")
}

func TestEnumerateDevicesListsFixedPair(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})

	v, err := env.Eval(context.Background(), `
		navigator.mediaDevices.enumerateDevices().then((devices) =>
			devices.map((d) => d.deviceId + ':' + d.kind).join(','))
	`)
	require.NoError(t, err)
	assert.Equal(t, "default:audioinput,communications:audioinput", v)
}

func TestPermissionQueryGrantsMicrophone(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})
	ctx := context.Background()

	v, err := env.Eval(ctx, `navigator.permissions.query({ name: 'microphone' }).then((s) => s.state)`)
	require.NoError(t, err)
	assert.Equal(t, "granted", v)

	v, err = env.Eval(ctx, `navigator.permissions.query({ name: 'geolocation' }).then((s) => s.state)`)
	require.NoError(t, err)
	assert.Equal(t, "prompt", v)
}

func TestRecorderEventOrderFromScript(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})

	v, err := env.Eval(context.Background(), `
		new Promise((resolve, reject) => {
			navigator.mediaDevices.getUserMedia({ audio: true }).then((stream) => {
				const rec = new MediaRecorder(stream, { mimeType: 'audio/wav' });
				const events = [];
				let size = -1;
				rec.ondataavailable = (e) => { events.push(e.type); size = e.data.size; };
				rec.addEventListener('start', (e) => events.push(e.type));
				rec.addEventListener('stop', (e) => {
					events.push(e.type);
					resolve({ events: events, size: size, state: rec.state, mime: rec.mimeType });
				});
				rec.start();
				rec.stop();
			}).catch(reject);
		})
	`)
	require.NoError(t, err)
	res, ok := v.(map[string]interface{})
	require.True(t, ok, "promise result must export as a map, got %T", v)

	assert.Equal(t, []interface{}{"start", "dataavailable", "stop"}, res["events"])
	assert.Equal(t, "inactive", res["state"])
	assert.Equal(t, "audio/wav", res["mime"])
	size, ok := res["size"].(int64)
	require.True(t, ok, "blob size must export as int64, got %T", res["size"])
	assert.Greater(t, size, int64(wav.HeaderSize), "final flush must carry a full container")
}

func TestRecorderBlobArrayBuffer(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})

	v, err := env.Eval(context.Background(), `
		new Promise((resolve, reject) => {
			navigator.mediaDevices.getUserMedia({ audio: true }).then((stream) => {
				const rec = new MediaRecorder(stream);
				rec.ondataavailable = (e) => {
					e.data.arrayBuffer().then((buf) => {
						const head = new Uint8Array(buf, 0, 4);
						resolve(String.fromCharCode(head[0], head[1], head[2], head[3]));
					});
				};
				rec.start();
				rec.stop();
			}).catch(reject);
		})
	`)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", v, "blob bytes must start with the container magic")
}

func TestReapplyIsIdempotent(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})
	ctx := context.Background()

	v, err := env.Eval(ctx, `
		(() => {
			const rec = MediaRecorder;
			const ac = AudioContext;
			const ok = window.__fauxmicReapply();
			return ok && rec === MediaRecorder && ac === AudioContext &&
				MediaRecorder.__patched === true && AudioContext.__patched === true;
		})()
	`)
	require.NoError(t, err)
	assert.Equal(t, true, v, "reapply must not replace already patched constructors")

	// Install from Go has the same guarantee.
	require.NoError(t, env.Install(ctx))
	v, err = env.Eval(ctx, "MediaRecorder.__patched === true")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestAnalyserFillsTypedArrays(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})
	ctx := context.Background()

	v, err := env.Eval(ctx, `
		(() => {
			const ctx = new AudioContext();
			const an = ctx.createAnalyser();
			const bytes = new Uint8Array(8);
			an.getByteTimeDomainData(bytes);
			const freq = new Uint8Array(8);
			an.getByteFrequencyData(freq);
			const floats = new Float32Array(4);
			an.getFloatFrequencyData(floats);
			const td = new Float32Array(4);
			an.getFloatTimeDomainData(td);
			return {
				byteTD: bytes[0], byteFreq: freq[0],
				floatFreq: floats[3], floatTD: td[2],
				bins: an.frequencyBinCount,
			};
		})()
	`)
	require.NoError(t, err)
	res, ok := v.(map[string]interface{})
	require.True(t, ok, "result must export as a map, got %T", v)
	assert.EqualValues(t, 200, res["byteTD"])
	assert.EqualValues(t, 128, res["byteFreq"])
	assert.EqualValues(t, -60, res["floatFreq"])
	assert.InDelta(t, 0.1, res["floatTD"], 1e-6)
	assert.EqualValues(t, 1024, res["bins"])
}

func TestAudioContextGraphFromScript(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})

	v, err := env.Eval(context.Background(), `
		(() => {
			const ctx = new AudioContext();
			const osc = ctx.createOscillator();
			osc.frequency.value = 523.25;
			const dest = ctx.createMediaStreamDestination();
			osc.connect(dest);
			osc.start();
			return {
				freq: osc.frequency.value,
				tracks: dest.stream.getAudioTracks().length,
				state: ctx.state,
			};
		})()
	`)
	require.NoError(t, err)
	res, ok := v.(map[string]interface{})
	require.True(t, ok, "result must export as a map, got %T", v)
	assert.InDelta(t, 523.25, res["freq"], 1e-9)
	assert.EqualValues(t, 1, res["tracks"])
	assert.Equal(t, "suspended", res["state"])
}

func TestBlobHookRoundTrip(t *testing.T) {
	fixture := wav.Synthesize(wav.ToneOptions{SampleRate: 8000, Duration: 0.25, Frequency: 880, Amplitude: 0.5})
	env := newTestEnvironment(t, Options{
		FixtureBase64:   base64.StdEncoding.EncodeToString(fixture),
		FixtureMIME:     "audio/wav",
		InstallRecorder: true,
	})

	v, err := env.Eval(context.Background(), "window.__fauxmicBlob()")
	require.NoError(t, err)
	encoded, ok := v.(string)
	require.True(t, ok, "blob hook must return a string, got %T", v)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, fixture, decoded, "hook must return the fixture byte for byte")

	header, err := wav.ParseHeader(decoded)
	require.NoError(t, err)
	assert.EqualValues(t, 8000, header.SampleRate)
}

func TestResumePlaybackHook(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})
	ctx := context.Background()

	// Needs a built graph first; capture triggers it.
	_, err := env.Eval(ctx, "navigator.mediaDevices.getUserMedia({ audio: true })")
	require.NoError(t, err)

	v, err := env.Eval(ctx, "window.__fauxmicResumePlayback()")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestSessionBlobMemoizedAndReset(t *testing.T) {
	s := NewSession(Options{Logger: zap.NewNop()})
	first := s.Blob()
	require.Len(t, first, wav.HeaderSize+int(wav.DefaultSampleRate*wav.DefaultDuration)*2)
	assert.Equal(t, first, s.Blob(), "blob must be memoized")

	s.Reset()
	assert.Equal(t, first, s.Blob(), "defaults must survive a reset")
}

func TestEvalTimeout(t *testing.T) {
	env := newTestEnvironment(t, Options{InstallRecorder: true})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := env.Eval(ctx, "new Promise(() => {})")
	require.Error(t, err, "a never settling promise must hit the deadline")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
