package vitals

import (
	"encoding/json"
	"time"
)

// Pressure is the float-valued systolic/diastolic pair used in trend output.
// Aggregated buckets average the integer readings, so the fields are floats.
type Pressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

// Value is one projected sample: a scalar for single-field metrics or a
// Pressure for the bloodPressure composite. It marshals as a bare number or
// as the pressure object, matching the dashboard's wire contract.
type Value struct {
	Scalar   float64
	Pressure *Pressure
}

// ScalarValue wraps a scalar sample.
func ScalarValue(v float64) Value {
	return Value{Scalar: v}
}

// PressureValue wraps a composite pressure sample.
func PressureValue(systolic, diastolic float64) Value {
	return Value{Pressure: &Pressure{Systolic: systolic, Diastolic: diastolic}}
}

// Composite reports whether the value carries a pressure pair.
func (v Value) Composite() bool {
	return v.Pressure != nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Pressure != nil {
		return json.Marshal(v.Pressure)
	}
	return json.Marshal(v.Scalar)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	var scalar float64
	if err := json.Unmarshal(b, &scalar); err == nil {
		v.Scalar = scalar
		v.Pressure = nil
		return nil
	}

	var pressure Pressure
	if err := json.Unmarshal(b, &pressure); err != nil {
		return err
	}
	v.Scalar = 0
	v.Pressure = &pressure
	return nil
}

// TrendPoint is one (timestamp, value) pair of a trend series. A series is
// derived per query and never persisted.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     Value     `json:"value"`
}
