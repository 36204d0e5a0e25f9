// Package ledger keeps an energy-token account of every power movement in the
// grid. One token stands for one watt-hour.
//
// Four kinds of event are recorded:
//   - generation: a producer mints tokens into the line it feeds
//   - transmission: a line burns its loss and forwards the rest to a substation
//   - distribution: a substation transfers tokens to a registered consumer
//   - consumption: a consumer burns what it received
//
// Each kind is gated by a role. Book enforces the roles and balances and
// persists accepted events to a store.Store. Substations only see the
// Recorder interface.
package ledger
