//go:build demo_haptics

// Package simdevice, under the demo_haptics build tag, renders a
// haptic SetOutput request as an audible sine tone through
// github.com/ebitengine/oto/v3 instead of silently discarding it:
// a deliberately audible stand-in for a physical actuator.
package simdevice

import (
	"io"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/openxrd/openxrd/internal/device"
	"github.com/openxrd/openxrd/internal/telemetry"
)

const hapticSampleRate = 44100

// buzzPlayer turns one-shot haptic requests into oto.Player Play()
// calls against a freshly generated sine-wave buffer; a haptic buzz
// is a fixed-length one-shot, so there is no continuous sample
// source to manage.
type buzzPlayer struct {
	mu  sync.Mutex
	ctx *oto.Context
}

var buzz *buzzPlayer

func init() {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   hapticSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   0,
	})
	if err != nil {
		telemetry.Warnf("simdevice: demo_haptics audio init failed, haptics will be silent: %v", err)
		return
	}
	<-ready
	buzz = &buzzPlayer{ctx: ctx}
	hapticSink = buzz.play
}

func (b *buzzPlayer) play(req device.OutputRequest) {
	freq := req.FrequencyHz
	if freq <= 0 {
		freq = 180 // a low buzz-motor-like tone when the client didn't specify one
	}
	amp := req.Amplitude
	if amp <= 0 {
		amp = 0.5
	} else if amp > 1 {
		amp = 1
	}
	nsamples := int(float64(hapticSampleRate) * float64(req.DurationNanos) / 1e9)
	if nsamples <= 0 {
		return
	}

	samples := make([]float32, nsamples)
	for i := range samples {
		t := float64(i) / hapticSampleRate
		samples[i] = amp * float32(math.Sin(2*math.Pi*float64(freq)*t))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.ctx.NewPlayer(&floatReader{samples: samples})
	p.Play()
	// Fire-and-forget: a haptic buzz is short and the player's own
	// buffer drains after Play returns; nothing downstream waits on it.
}

// floatReader streams a fixed float32LE sample buffer once, then EOF.
type floatReader struct {
	samples []float32
	pos     int
}

func (r *floatReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.samples) {
		return 0, io.EOF
	}
	n := 0
	for n+4 <= len(p) && r.pos < len(r.samples) {
		bits := math.Float32bits(r.samples[r.pos])
		p[n+0] = byte(bits)
		p[n+1] = byte(bits >> 8)
		p[n+2] = byte(bits >> 16)
		p[n+3] = byte(bits >> 24)
		r.pos++
		n += 4
	}
	return n, nil
}
