// Package incident defines the incident record at the center of the
// orchestration engine: the domain model, the ordered severity scale and its
// mapping from metric readings, the fault-theme extraction used for
// correlation grouping, and the Store interface (persistence).
package incident
