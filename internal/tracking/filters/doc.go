// Package filters is the geometric filter service of the track finder.
//
// Responsibilities: pure functions over two, three and four hit positions
// (and whole ordered tracks) that compute a geometric quantity and check it
// against a sector-pair cutoff. Degenerate geometry is reported as an
// inconclusive Verdict with a named Reason, never as an error or panic.
// Key types: Kind, Cutoff, Verdict, Geometry.
//
// Dependency rule: filters may depend on hits only.
package filters
