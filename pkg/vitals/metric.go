package vitals

import (
	"errors"
	"fmt"
)

// Metric identifies one of the supported vitals metrics. The set is a closed
// enumeration; each metric is either scalar or composite, resolved once when
// the metric name is parsed rather than by dynamic field lookup per reading.
type Metric string

const (
	MetricTemperature      Metric = "temperature"
	MetricHeartRate        Metric = "heartRate"
	MetricBloodPressure    Metric = "bloodPressure"
	MetricOxygenSaturation Metric = "oxygenSaturation"
	MetricRespiratoryRate  Metric = "respiratoryRate"
	MetricBloodGlucose     Metric = "bloodGlucose"
)

// ErrUnknownMetric indicates a metric name outside the supported set.
var ErrUnknownMetric = errors.New("unknown metric")

var metricKinds = map[Metric]bool{
	MetricTemperature:      false,
	MetricHeartRate:        false,
	MetricBloodPressure:    true,
	MetricOxygenSaturation: false,
	MetricRespiratoryRate:  false,
	MetricBloodGlucose:     false,
}

// ParseMetric resolves a metric name to its Metric value.
func ParseMetric(name string) (Metric, error) {
	m := Metric(name)
	if _, ok := metricKinds[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return m, nil
}

// Metrics returns all supported metrics.
func Metrics() []Metric {
	return []Metric{
		MetricTemperature,
		MetricHeartRate,
		MetricBloodPressure,
		MetricOxygenSaturation,
		MetricRespiratoryRate,
		MetricBloodGlucose,
	}
}

// Composite reports whether the metric projects to a multi-field value.
func (m Metric) Composite() bool {
	return metricKinds[m]
}

// Project extracts the metric's value from a reading. The second return is
// false when the reading lacks the field, which callers treat as a silent
// skip: readings appended by older builds may predate a field.
func (m Metric) Project(r Reading) (Value, bool) {
	switch m {
	case MetricTemperature:
		return ScalarValue(r.Temperature), true
	case MetricHeartRate:
		return ScalarValue(float64(r.HeartRate)), true
	case MetricBloodPressure:
		if r.BloodPressure == nil {
			return Value{}, false
		}
		return PressureValue(float64(r.BloodPressure.Systolic), float64(r.BloodPressure.Diastolic)), true
	case MetricOxygenSaturation:
		return ScalarValue(float64(r.OxygenSaturation)), true
	case MetricRespiratoryRate:
		return ScalarValue(float64(r.RespiratoryRate)), true
	case MetricBloodGlucose:
		return ScalarValue(r.BloodGlucose), true
	default:
		return Value{}, false
	}
}
