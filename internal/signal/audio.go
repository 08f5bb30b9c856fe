package signal

import (
	"math"
	"math/rand/v2"
)

// Bands is the number of spectrum bands per channel (MSGEQ7 layout).
const Bands = 7

// AudioFrame is one sample of the 7-band stereo spectrum, values in [0,1].
type AudioFrame struct {
	Mono   [Bands]float64
	Left   [Bands]float64
	Right  [Bands]float64
	Energy float64
}

// AudioSource produces a spectrum for logical time t.
// Implementations must be deterministic in t.
type AudioSource interface {
	Sample(t float64) AudioFrame
}

// SimulatedAudio is a sine-sum spectrum generator used when no capture
// backend is attached. Output depends only on (seed, t).
type SimulatedAudio struct {
	offsets [Bands]float64
}

// NewSimulatedAudio creates a generator. Seed 0 yields zero phase offsets.
func NewSimulatedAudio(seed uint64) *SimulatedAudio {
	s := &SimulatedAudio{}
	if seed == 0 {
		return s
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := range s.offsets {
		s.offsets[i] = rng.Float64() * 2 * math.Pi
	}
	return s
}

// Sample implements AudioSource.
func (s *SimulatedAudio) Sample(t float64) AudioFrame {
	var f AudioFrame
	base := 0.5 + 0.5*math.Sin(2*math.Pi*0.33*t)
	sum := 0.0
	for i := 0; i < Bands; i++ {
		freq := 0.20 + float64(i)*0.11
		phase := float64(i)*0.6 + s.offsets[i]
		v := 0.65*(0.5+0.5*math.Sin(2*math.Pi*freq*t+phase)) + 0.35*base
		f.Mono[i] = clamp01(v)
		f.Left[i] = clamp01(0.92*v + 0.08*(0.5+0.5*math.Sin(2*math.Pi*1.03*freq*t+phase)))
		f.Right[i] = clamp01(0.92*v + 0.08*(0.5+0.5*math.Sin(2*math.Pi*0.97*freq*t+phase+0.2)))
		sum += f.Mono[i]
	}
	f.Energy = sum / Bands
	return f
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
