// Package handshake owns the outbound version/verack exchange with one peer.
//
// Ownership boundary:
// - connection setup and the read/write split
// - outbound writer task
// - inbound framing and per-message dispatch
// - event chain recording and completion detection
// - shutdown coordination across completion, interrupt, and timeout
//
// Task layout for one Run:
// - recorder owns the EventChain
// - writer owns the write half
// - reader pipeline owns the read half and the dispatch group
//
// Cross-task traffic goes through mailboxes only. Every task watches the same
// Shutdown and closes its own stream half before returning.
package handshake
