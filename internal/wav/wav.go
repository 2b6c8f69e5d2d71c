// internal/wav/wav.go
package wav

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// HeaderSize is the length of the canonical RIFF/WAVE/fmt/data header.
const HeaderSize = 44

// Default tone parameters. The tone is deliberately quiet to stay clear of
// clipping when the application runs level analysis on it.
const (
	DefaultSampleRate = 16000
	DefaultDuration   = 2.0
	DefaultFrequency  = 440.0
	DefaultAmplitude  = 0.2
)

// Payload is an audio byte sequence together with its declared MIME type.
// Once selected for a session it is immutable.
type Payload struct {
	Bytes    []byte
	MIMEType string
}

// ToneOptions parameterize Synthesize. Zero values select the defaults.
type ToneOptions struct {
	SampleRate int
	Duration   float64 // seconds
	Frequency  float64 // Hz
	Amplitude  float64 // 0..1
}

func (o ToneOptions) withDefaults() ToneOptions {
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Duration <= 0 {
		o.Duration = DefaultDuration
	}
	if o.Frequency <= 0 {
		o.Frequency = DefaultFrequency
	}
	if o.Amplitude <= 0 {
		o.Amplitude = DefaultAmplitude
	}
	return o
}

// Encode serializes signed 16-bit mono PCM samples into a structurally valid
// WAV container. The output is byte-exact and deterministic for the same
// inputs.
func Encode(samples []int16, sampleRate int) []byte {
	dataBytes := uint32(len(samples) * 2)
	buf := make([]byte, HeaderSize+int(dataBytes))

	const (
		numChannels   = 1
		bitsPerSample = 16
		pcmFormat     = 1
	)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataBytes)
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], pcmFormat)
	binary.LittleEndian.PutUint16(buf[22:24], numChannels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate)*numChannels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(buf[32:34], numChannels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataBytes)

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[HeaderSize+i*2:], uint16(s))
	}
	return buf
}

// Synthesize produces a WAV container holding a pure sine tone.
func Synthesize(opts ToneOptions) []byte {
	opts = opts.withDefaults()

	numSamples := int(float64(opts.SampleRate) * opts.Duration)
	samples := make([]int16, numSamples)
	for i := range samples {
		t := float64(i) / float64(opts.SampleRate)
		v := opts.Amplitude * math.Sin(2*math.Pi*opts.Frequency*t)
		// Clamp before scaling so overdriven amplitudes cannot wrap.
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = int16(math.Round(v * 32767))
	}
	return Encode(samples, opts.SampleRate)
}

// Wrap decodes an externally supplied base64 payload and pairs it with its
// declared MIME type. Malformed input falls back to the default synthetic
// tone rather than failing: the harness must always be able to hand the
// application a recording.
func Wrap(b64, mimeType string) Payload {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(raw) == 0 {
		return Payload{Bytes: Synthesize(ToneOptions{}), MIMEType: "audio/wav"}
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return Payload{Bytes: raw, MIMEType: mimeType}
}

// Header holds the fields of a parsed WAV header.
type Header struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataBytes     int
}

// ParseHeader reads back the canonical 44-byte header. It exists so callers
// (and the test suite) can verify container structure without an audio
// decoder.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("container too short: %d bytes", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Header{}, fmt.Errorf("missing RIFF/WAVE magic")
	}
	if string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return Header{}, fmt.Errorf("missing fmt/data sub-chunks")
	}
	return Header{
		Channels:      int(binary.LittleEndian.Uint16(b[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(b[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(b[34:36])),
		DataBytes:     int(binary.LittleEndian.Uint32(b[40:44])),
	}, nil
}
