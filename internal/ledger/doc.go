// Package ledger holds the coordinator's shared recommendation state.
//
// The active pool contains recommendations collected from agents that are
// neither expired, applied, nor beaten by a competing recommendation of the
// same kind. The applied log keeps the most recent applied recommendations
// (10 by default) for reporting.
//
// Invariants:
//
//   - An entry is removed from the pool in the same critical section that
//     appends it to the applied log, so it is never both active and applied.
//   - Sweep removes every expired entry; the coordinator sweeps on every
//     collection pass.
//   - Applied and discarded ids are remembered for a settled window so a
//     later collection does not resurrect them from agent history.
//
// Conflict policies:
//
//   - quality_optimization: lowest severity (low < medium < high), then
//     highest confidence, then earliest creation
//   - everything else: highest confidence, then earliest creation
package ledger
