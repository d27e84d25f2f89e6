// Package pipeline composes the track-finding stages into event cycles.
//
// One cycle runs every configured pass over the event's measurements:
// sector index, segment builder, neighbor linker, cellular automaton,
// candidate collector and candidate filter. Candidates of all passes then
// share one ownership table and go through overlap resolution. Survivors
// become Tracks.
//
// A circuit breaker in any stage aborts the whole cycle. The abort is
// reported in the Result and never leaks partial tracks. All per-cycle
// state is local to ProcessEvent, so independent events can be processed
// concurrently by ProcessEvents.
//
// Dependency rule: pipeline may depend on every internal/tracking package
// below it and on internal/config. Storage and report adapters depend on
// pipeline, not the other way round.
package pipeline
