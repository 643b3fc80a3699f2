// Package log provides the protocol trace log of the SOME/IP daemon.
//
// The trace is separate from operational logging (slog). It records every
// routing decision, service discovery entry and state machine transition as
// a machine-readable Event so a run can be replayed and inspected offline
// with someipd-log.
//
// # Basic Usage
//
//	// During development: trace to the console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// In production: write a binary trace file
//	fl, _ := log.NewFileLogger("/var/log/someipd/trace.slog")
//	cfg.ProtocolLogger = fl
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
// Events are captured at three layers:
//   - Router: packets forwarded or dropped (MessageEvent)
//   - SD: entries sent and received (EntryEvent), state machine
//     transitions (StateChangeEvent)
//   - Application: local connections attaching and detaching
//     (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Trace files are a stream of CBOR encoded events with integer map keys.
package log
