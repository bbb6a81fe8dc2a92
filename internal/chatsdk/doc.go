// Package chatsdk adapts an asynchronous chat engine to a host application.
//
// Responsibilities:
// - Gate every call on the lifecycle stage of the single engine session.
// - Correlate each accepted engine call with exactly one completion (or, for
//   the push subscription, many).
// - Translate completions into canonical events and hand them to a Sink.
//
// Non-responsibilities:
// - Cryptography, storage and networking (owned by the engine).
// - Fan-out of events beyond the Sink (owned by the host).
// - Timeouts: a request the engine never completes stays outstanding.
package chatsdk
