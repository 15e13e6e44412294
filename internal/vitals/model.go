// Package vitals stores raw sensor readings.
package vitals

import (
	"time"

	"github.com/google/uuid"
)

// Reading is one set of vital signs from a bedside sensor.
type Reading struct {
	ID          uuid.UUID `json:"id"          db:"id"`
	PatientID   string    `json:"patientId"   db:"patient_id"   validate:"required,max=128"`
	HeartRate   int       `json:"heartRate"   db:"heart_rate"   validate:"gte=0,lte=300"`
	SpO2        int       `json:"spo2"        db:"spo2"         validate:"gte=0,lte=100"`
	Temperature float64   `json:"temperature" db:"temperature"  validate:"gte=0,lte=50"`
	SystolicBP  int       `json:"systolicBP"  db:"systolic_bp"  validate:"gte=0,lte=300"`
	DiastolicBP int       `json:"diastolicBP" db:"diastolic_bp" validate:"gte=0,lte=200"`
	Humidity    float64   `json:"humidity"    db:"humidity"     validate:"gte=0,lte=100"`
	RecordedAt  time.Time `json:"recordedAt"  db:"recorded_at"`
}
