// Package metrics defines the sinks that observe a simulation run.
//
// An AllocationSink receives the full report of every successful substation
// step. A StepRecorder additionally receives step lifecycle events bridged
// from the event bus. Concrete sinks (Prometheus, InfluxDB, MQTT) live in
// infra and register themselves with RegisterSink. NewSink returns a
// MultiSink when several sinks are configured.
package metrics
