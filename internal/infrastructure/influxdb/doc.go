// Package influxdb provides the InfluxDB telemetry sink for astrobridge.
//
// It wraps the official influxdb-client-go v2 library. Two measurements are
// written:
//   - device_telemetry: numeric fields of live telemetry samples, tagged by device
//   - process_duration: run time of each finished process, tagged by type and status
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("camera", map[string]float64{"temperature_c": -10}, time.Now())
//
// Writes are batched according to batch_size and flush_interval and never
// block the caller. Async write failures are delivered to SetOnError.
package influxdb
