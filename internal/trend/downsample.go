package trend

import (
	"github.com/1broseidon/vitalstream/pkg/vitals"
)

// Downsample reduces a series to ceil(len/bucketSize) points by averaging
// contiguous chunks of bucketSize points. The final chunk may be shorter and
// is still emitted, averaged over its actual size. Each output point carries
// the timestamp of the last element in its chunk ("as of" semantics for
// display). The input is not mutated.
func Downsample(points []vitals.TrendPoint, bucketSize int) ([]vitals.TrendPoint, error) {
	if bucketSize <= 0 {
		return nil, &RequestError{Param: "bucketSize", Reason: "must be a positive integer"}
	}

	out := make([]vitals.TrendPoint, 0, (len(points)+bucketSize-1)/bucketSize)

	for start := 0; start < len(points); start += bucketSize {
		end := start + bucketSize
		if end > len(points) {
			end = len(points)
		}
		out = append(out, aggregateChunk(points[start:end]))
	}

	return out, nil
}

// aggregateChunk reduces one non-empty chunk to its mean, per field for
// composite values
func aggregateChunk(chunk []vitals.TrendPoint) vitals.TrendPoint {
	last := chunk[len(chunk)-1]
	n := float64(len(chunk))

	if chunk[0].Value.Composite() {
		var systolic, diastolic float64
		for _, p := range chunk {
			systolic += p.Value.Pressure.Systolic
			diastolic += p.Value.Pressure.Diastolic
		}
		return vitals.TrendPoint{
			Timestamp: last.Timestamp,
			Value:     vitals.PressureValue(systolic/n, diastolic/n),
		}
	}

	var sum float64
	for _, p := range chunk {
		sum += p.Value.Scalar
	}
	return vitals.TrendPoint{
		Timestamp: last.Timestamp,
		Value:     vitals.ScalarValue(sum / n),
	}
}
