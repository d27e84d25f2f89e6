// Package hits owns the per-cycle hit model of the track finder.
//
// Responsibilities: 3D positions, detector kinds, cluster back-references
// used for overlap detection, and construction of the per-pass hit arena
// (one virtual reference hit followed by one hit per measurement).
// Key types: Hit, Measurement, Key, Vec3.
//
// Dependency rule: hits is the leaf of internal/tracking and imports no
// other tracking package.
package hits
