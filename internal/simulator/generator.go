// Package simulator produces synthetic vitals readings. Each metric is drawn
// uniformly from its declared clinical range, matching what a bedside sensor
// feed would report.
package simulator

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/1broseidon/vitalstream/pkg/vitals"
)

// Declared metric ranges. Scalars with one decimal are rounded after sampling.
const (
	temperatureMin = 30.0 // °C
	temperatureMax = 42.0

	heartRateMin = 38 // bpm
	heartRateMax = 120

	systolicMin = 70 // mmHg
	systolicMax = 150

	diastolicMin = 50 // mmHg
	diastolicMax = 100

	oxygenSaturationMin = 80 // %
	oxygenSaturationMax = 100

	respiratoryRateMin = 8 // breaths/min
	respiratoryRateMax = 25

	bloodGlucoseMin = 2.0 // mmol/L
	bloodGlucoseMax = 9.0
)

// Generator produces one synthetic reading per call. It is safe for use from
// multiple sessions; the randomness source is guarded by a mutex.
type Generator struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// New creates a generator backed by the given randomness source. A nil source
// seeds a PCG from the wall clock.
func New(src rand.Source) *Generator {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>32)
	}
	return &Generator{rand: rand.New(src)}
}

// Generate returns one reading for the patient at the given time. Every
// declared metric is populated and within its range.
func (g *Generator) Generate(patientID string, now time.Time) vitals.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	return vitals.Reading{
		PatientID:   patientID,
		Temperature: round1(temperatureMin + g.rand.Float64()*(temperatureMax-temperatureMin)),
		HeartRate:   heartRateMin + g.rand.IntN(heartRateMax-heartRateMin+1),
		BloodPressure: &vitals.BloodPressure{
			Systolic:  systolicMin + g.rand.IntN(systolicMax-systolicMin+1),
			Diastolic: diastolicMin + g.rand.IntN(diastolicMax-diastolicMin+1),
		},
		OxygenSaturation: oxygenSaturationMin + g.rand.IntN(oxygenSaturationMax-oxygenSaturationMin+1),
		RespiratoryRate:  respiratoryRateMin + g.rand.IntN(respiratoryRateMax-respiratoryRateMin+1),
		BloodGlucose:     float64(int(bloodGlucoseMin*10)+g.rand.IntN(int((bloodGlucoseMax-bloodGlucoseMin)*10)+1)) / 10,
		Timestamp:        now,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
