// Package device mirrors remote structures and devices in memory and
// hands out per-device handles to consumers.
//
// # Architecture
//
//	snapshot (stream)         Registry                     Handle(s)
//	─────────────────▶  ReconcileStructures ──▶ StructureChange subscribers
//	                    ReconcileDevices    ──▶ checkForChanges / removed
//	                                                          │
//	                                       SendCommand ◀──────┘
//	                                            │
//	                                            ▼
//	                                     command.Gateway
//
// The Registry owns the canonical mappings and replaces them wholesale on
// every snapshot. Structures are diffed by the Registry itself; device
// attributes are diffed by each Handle against its own cache, so a
// consumer only hears about transitions it has observed. The first value
// a handle sees is recorded silently.
//
// # Kinds
//
//   - KindThermostat: temperatures, humidity, HVAC mode and state
//   - KindProtect: smoke/CO alarm state and battery health
//   - KindCamera: streaming flag, snapshot URL, last motion/sound event
//
// Only whitelisted attributes (the kind's capabilities plus the fields the
// command rules read) are copied out of a raw snapshot.
//
// # Thread Safety
//
// Reconciles are serialised by one mutex. Lookups take a read lock and
// never wait on event dispatch. Handle callbacks run on the reconciling
// goroutine and must not block.
package device
