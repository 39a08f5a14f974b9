// Package config loads astrobridge settings.
//
// Values are layered: Default, then the YAML file, then ASTROBRIDGE_*
// environment variables, and the result must pass Validate. Broker
// passwords and InfluxDB tokens can be kept out of the file with
// ASTROBRIDGE_MQTT_PASSWORD and ASTROBRIDGE_INFLUXDB_TOKEN.
//
//	cfg, err := config.Load(path)
//	if err != nil {
//		return err
//	}
//	logger := logging.New(cfg.Logging, version)
package config
