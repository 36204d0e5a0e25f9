// Package metrics provides the Prometheus and InfluxDB sinks, the /metrics
// HTTP server and the collector bridging step events from the event bus.
// Importing it registers the "nop", "prometheus" and "influx" sink types.
package metrics
