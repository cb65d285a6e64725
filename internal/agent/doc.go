// Package agent provides the lifecycle shell shared by every background agent.
//
// # Overview
//
// An agent is an independently scheduled unit that produces Recommendations
// and exchanges Messages. Concrete agents embed *Base and supply the four
// Behavior hooks:
//
//	type Behavior interface {
//	    Initialize(ctx) error
//	    Cleanup(ctx) error
//	    Process(ctx) error
//	    HandleMessage(ctx, Message) error
//	}
//
// # Loop
//
// Start launches exactly one goroutine. Each iteration:
//
//  1. Drains the mailbox completely, handing every message to HandleMessage in FIFO order
//  2. Calls Process
//  3. Sleeps for the update interval
//
// Errors and panics from the hooks are logged and followed by a short
// recovery pause instead of the interval. Only Stop ends the loop, and only
// at an iteration boundary.
//
// # Recommendations
//
// The per-agent store is append-only. RecentRecommendations is a view that
// applies both the age window and explicit expiry; nothing is ever pruned
// from the store itself.
//
// # Thread Safety
//
// The mailbox and store are mutex guarded. ReceiveMessage never blocks, so
// the bus can deliver from any goroutine.
package agent
