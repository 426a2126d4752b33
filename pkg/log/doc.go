// Package log provides structured protocol logging for the notification
// service.
//
// Protocol capture is separate from operational logging (slog). It records
// a machine-readable trace of every frame a subscription socket sees and of
// every delivery decision the dispatcher makes, so a missing notification
// can be explained after the fact.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/fhirsub/server.flog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - Message: text frames (bind, bound, payload, ping notice)
//   - Control: websocket ping, pong and close frames
//   - State: connection state changes
//   - Delivery: dispatcher decisions per recipient
//   - Error: failures at any layer
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys, using
// the .flog extension. The fhirsub-log tool views and summarizes them.
package log
