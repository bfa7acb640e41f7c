// Package allocation computes per-group, per-tier integer allocation matrices
// whose weighted sum approximates a target quantity.
//
// A run is a fixed pipeline:
//
//	CoarseFill -> Refine -> Enforce
//
// CoarseFill greedily fills tiers in tier-major, group-minor order without
// overshooting the target. Refine is a first-best single-step hill climb over
// ±1 moves that keep each row valid. Enforce clamps the result into the
// selected shape (monotonic or smooth-decrease) and is idempotent.
//
// Splitter wraps Engine to allocate two named cohorts independently with a
// ratio-scaled sub-target each, then splices the rows back into caller order.
//
// All arithmetic uses exact decimals. Every call is synchronous, deterministic
// and self-contained; nothing is shared between calls.
package allocation
