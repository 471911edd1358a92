// Package bus implements a typed publish/subscribe primitive that decouples
// producers of lifecycle notifications from their consumers (observability,
// feedback collection, learning) without either side knowing about the other.
//
// Core features:
//
//   - Priority-ordered subscribers per event type plus wildcard subscriptions
//   - An ordered middleware pipeline that can transform or drop events before
//     they are recorded and dispatched
//   - A bounded in-memory history ring with oldest-first eviction
//   - A bounded dead-letter queue isolating handler timeouts and panics
//   - Synchronous (awaited, result-collecting) and fire-and-forget emission
//   - A bounded worker pool that adapts blocking handlers so they can never
//     stall the calling flow
//
// Failure of one handler never prevents others from running and never
// propagates to the emitter; it is recorded as a dead letter and logged.
// Fire-and-forget handler failures are recorded in the dead-letter queue as
// well, for observability parity with awaited emission.
package bus
