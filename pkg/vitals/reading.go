// Package vitals defines the core data structures for patient readings,
// metric projection, and trend series shared across the application.
package vitals

import (
	"encoding/json"
	"time"
)

// BloodPressure is the composite systolic/diastolic pair carried by a reading.
type BloodPressure struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// Reading represents one vitals sample for a patient at a point in time.
// Readings are immutable once created; the timestamp marshals as RFC 3339,
// which is what the dashboard consumes.
type Reading struct {
	PatientID        string         `json:"patientId"`
	Temperature      float64        `json:"temperature"`
	HeartRate        int            `json:"heartRate"`
	BloodPressure    *BloodPressure `json:"bloodPressure,omitempty"`
	OxygenSaturation int            `json:"oxygenSaturation"`
	RespiratoryRate  int            `json:"respiratoryRate"`
	BloodGlucose     float64        `json:"bloodGlucose"`
	Timestamp        time.Time      `json:"timestamp"`
}

// EncodedSize returns the JSON byte footprint of the reading. The history
// store accounts its byte ceiling against this value, since it is what
// actually crosses the wire per reading.
func (r Reading) EncodedSize() int {
	data, err := json.Marshal(r)
	if err != nil {
		return 0
	}
	return len(data)
}
