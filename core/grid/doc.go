// Package grid models a single-hop distribution network: producers feed
// lossy lines, lines deliver to substations, and substations split the
// delivered power among their consumers in proportion to demand.
//
// Amounts are watt-hours held in float64. Producer requests round up and
// consumer allocations round down, so a substation never hands out more than
// its lines delivered.
package grid
