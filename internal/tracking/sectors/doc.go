// Package sectors owns the sector map and the per-pass sector index.
//
// Responsibilities: loading and validating sector maps (sector ids, layer,
// ordered friend lists and per friend filter cutoffs), and grouping the
// hits of one pass by sector with a deterministic active-sector order.
// Key types: Map, Sector, Index.
//
// Dependency rule: sectors may depend on hits and filters only.
package sectors
