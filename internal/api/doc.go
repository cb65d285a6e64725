// Package api serves the read-mostly HTTP surface of a running coordinator.
//
// Endpoints:
//
//	GET  /health                       liveness, always 200
//	GET  /ready                        200 once the coordinator is running
//	GET  /api/status                   coordinator, ledger, bus and agent status
//	GET  /api/recommendations          active pool; ?include_applied=true adds the applied log
//	GET  /api/agents/{id}              one agent's status plus its kind-specific details
//	POST /api/agents/{id}/messages     inject a host event addressed to an agent
//	POST /api/coordination/{action}    run a manual coordination action
//	GET  /report                       HTML report; ?format=md for the markdown source
//
// Errors are JSON objects of the form {"error": "..."}.
package api
