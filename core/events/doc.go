// Package events defines the simulation events published on the event bus.
//
// Available event types:
//   - StepEvent: a substation step started, completed or failed
package events
