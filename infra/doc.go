// Package infra holds the adapters behind the core interfaces: loggers,
// metrics sinks, the MQTT publisher and error monitoring. Nothing in core
// imports these packages.
package infra
