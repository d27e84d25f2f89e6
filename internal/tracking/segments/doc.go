// Package segments builds the segment graph of one pass.
//
// Responsibilities: creating segments between hits of friend sectors that
// pass the two-hit filters, linking adjacent segments that pass the
// three-hit filters, seed bookkeeping, discarding isolated segments and
// the segment-count circuit breaker.
// Key types: Graph, Segment, Config.
//
// Segments live in an index-addressed arena; every adjacency list holds
// arena indices.
//
// Dependency rule: segments may depend on hits, filters and sectors.
package segments
