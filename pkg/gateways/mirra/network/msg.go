package network

import (
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
)

// MeasurementSent is the upload body of one stored DATA record.
type MeasurementSent struct {
	Gateway   string                 `json:"gateway"`
	Source    string                 `json:"source"`
	Timestamp uint32                 `json:"timestamp"`
	Flags     entities.RecordFlags   `json:"flags"`
	Values    []entities.SensorValue `json:"values"`
}
