package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by astrobridge.
const (
	MeasurementTelemetry       = "device_telemetry"
	MeasurementProcessDuration = "process_duration"
)

// WriteTelemetry queues one device sample, tagged by device. Samples with
// no fields are ignored.
func (c *Client) WriteTelemetry(device string, fields map[string]float64, ts time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(telemetryPoint(device, fields, ts))
}

// WriteProcessDuration queues the run time of a completed process, tagged by
// type and terminal status.
func (c *Client) WriteProcessDuration(processType, status string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(processDurationPoint(processType, status, duration, time.Now()))
}

func telemetryPoint(device string, fields map[string]float64, ts time.Time) *write.Point {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return write.NewPoint(
		MeasurementTelemetry,
		map[string]string{"device": device},
		values,
		ts,
	)
}

func processDurationPoint(processType, status string, duration time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementProcessDuration,
		map[string]string{
			"process_type": processType,
			"status":       status,
		},
		map[string]interface{}{
			"seconds": duration.Seconds(),
		},
		ts,
	)
}
