// Package dedupe remembers keys for a bounded time window.
//
// The coordinator uses it to remember recommendation ids it has already
// settled (applied or discarded by conflict resolution) so that the next
// collection pass does not pull them back out of the owning agent's history.
package dedupe
