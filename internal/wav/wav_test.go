// internal/wav/wav_test.go
package wav

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	t.Run("should write a canonical header for mono PCM16", func(t *testing.T) {
		t.Parallel()
		samples := []int16{0, 100, -100, 32767, -32768}
		b := Encode(samples, 8000)

		require.Len(t, b, HeaderSize+len(samples)*2)

		h, err := ParseHeader(b)
		require.NoError(t, err)
		assert.Equal(t, 1, h.Channels)
		assert.Equal(t, 8000, h.SampleRate)
		assert.Equal(t, 16, h.BitsPerSample)
		assert.Equal(t, len(samples)*2, h.DataBytes)
	})

	t.Run("should be deterministic for identical inputs", func(t *testing.T) {
		t.Parallel()
		samples := []int16{1, 2, 3, 4}
		assert.Equal(t, Encode(samples, 16000), Encode(samples, 16000))
	})

	t.Run("should encode samples little-endian", func(t *testing.T) {
		t.Parallel()
		b := Encode([]int16{0x0102}, 16000)
		assert.Equal(t, byte(0x02), b[HeaderSize])
		assert.Equal(t, byte(0x01), b[HeaderSize+1])
	})
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	t.Run("default tone has the documented byte length", func(t *testing.T) {
		t.Parallel()
		b := Synthesize(ToneOptions{})
		// 44-byte header + 16000 samples/s * 2 s * 2 bytes/sample.
		require.Len(t, b, 44+16000*2*2)

		h, err := ParseHeader(b)
		require.NoError(t, err)
		assert.Equal(t, 16000, h.SampleRate)
		assert.Equal(t, 1, h.Channels)
		assert.Equal(t, 16, h.BitsPerSample)
		assert.Equal(t, 16000*2*2, h.DataBytes)
	})

	t.Run("first sample of a sine tone is zero", func(t *testing.T) {
		t.Parallel()
		b := Synthesize(ToneOptions{})
		assert.Equal(t, byte(0), b[HeaderSize])
		assert.Equal(t, byte(0), b[HeaderSize+1])
	})

	t.Run("tone is deterministic", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, Synthesize(ToneOptions{}), Synthesize(ToneOptions{}))
	})
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("round-trips supplied bytes untouched", func(t *testing.T) {
		t.Parallel()
		raw := []byte{0xde, 0xad, 0xbe, 0xef}
		p := Wrap(base64.StdEncoding.EncodeToString(raw), "audio/webm")
		assert.Equal(t, raw, p.Bytes)
		assert.Equal(t, "audio/webm", p.MIMEType)
	})

	t.Run("falls back to the synthetic tone on malformed base64", func(t *testing.T) {
		t.Parallel()
		p := Wrap("not-base64!!!", "audio/webm")
		assert.Equal(t, "audio/wav", p.MIMEType)
		h, err := ParseHeader(p.Bytes)
		require.NoError(t, err)
		assert.Equal(t, DefaultSampleRate, h.SampleRate)
	})

	t.Run("falls back on empty payload", func(t *testing.T) {
		t.Parallel()
		p := Wrap("", "audio/ogg")
		assert.Greater(t, len(p.Bytes), HeaderSize)
	})
}

func TestParseHeader(t *testing.T) {
	t.Parallel()

	t.Run("rejects short buffers", func(t *testing.T) {
		t.Parallel()
		_, err := ParseHeader(make([]byte, 10))
		require.Error(t, err)
	})

	t.Run("rejects garbage magic", func(t *testing.T) {
		t.Parallel()
		b := Encode([]int16{1}, 16000)
		b[0] = 'X'
		_, err := ParseHeader(b)
		require.Error(t, err)
	})
}
