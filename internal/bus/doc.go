// Package bus routes messages between agents and the coordinator by name.
//
// Publish delivers synchronously: a unicast message reaches exactly the
// named subscriber, a message addressed to "all" reaches every subscriber
// except its sender, and a message for an unknown id is dropped without an
// error. Callers that need delivery confirmation exchange their own
// acknowledgement messages.
//
// Every published message is appended to a bounded history (1000 by
// default); once full the oldest entry is evicted.
package bus
