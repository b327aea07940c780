// Package storage persists the entities the resolution engine consumes:
// event definitions, per-date time overrides, and registered voice assets.
//
// The engine itself never writes here; the per-minute runner reads one
// consistent snapshot per cycle and the admin surfaces own all mutation.
package storage
