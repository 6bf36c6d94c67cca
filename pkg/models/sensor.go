package models

import (
	"strconv"
	"strings"
	"time"
)

// SensorReading is one timestamped snapshot reported by a secondary rod.
// Absent measurements are nil.
type SensorReading struct {
	ID           string    `json:"id"`
	RodID        string    `json:"rodId,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
	Moisture     *float64  `json:"moisture,omitempty"`
	PH           *float64  `json:"ph,omitempty"`
	Conductivity *float64  `json:"conductivity,omitempty"`
	Nitrogen     *float64  `json:"nitrogen,omitempty"`
	Phosphorus   *float64  `json:"phosphorus,omitempty"`
	Potassium    *float64  `json:"potassium,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Values returns the seven sensor fields in their canonical order.
func (r SensorReading) Values() []*float64 {
	return []*float64{
		r.Temperature,
		r.Moisture,
		r.PH,
		r.Conductivity,
		r.Nitrogen,
		r.Phosphorus,
		r.Potassium,
	}
}

// Fingerprint joins the sensor values with "|", writing "null" for absent ones.
func (r SensorReading) Fingerprint() string {
	parts := make([]string, 0, 7)
	for _, v := range r.Values() {
		if v == nil {
			parts = append(parts, "null")
			continue
		}
		parts = append(parts, strconv.FormatFloat(*v, 'g', -1, 64))
	}
	return strings.Join(parts, "|")
}

// Float returns a pointer to v. Handy for building readings in code.
func Float(v float64) *float64 {
	return &v
}
