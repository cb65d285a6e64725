// Package coordinator owns the agents, the message bus and the
// recommendation ledger, and reconciles agent output into one
// conflict-free stream of applied actions.
//
// Lifecycle:
//
//	Uninitialized -> Initializing -> Running -> ShuttingDown -> Stopped
//
// Initialize constructs agents through the Factory registry, subscribes each
// one plus the coordinator itself ("coordinator") to the bus, starts the
// enabled agents and launches the coordination loop. Each loop iteration is
// one RunCycle:
//
//  1. Collect recent recommendations from every agent and sweep expired ones
//  2. Resolve same-kind conflicts with the ledger's per-kind policy
//  3. Auto-apply entries flagged auto_apply with confidence above the threshold
//  4. Broadcast coordination_status to every agent
//
// A panic or error in a phase is logged and the loop waits RecoveryPause
// before the next cycle. Failed applies leave the recommendation active so
// the next cycle retries it.
package coordinator
