// Package quality implements the stream-quality agent.
//
// Every iteration the agent samples each monitored platform through a host
// Sampler, flags threshold breaches as issues, and emits a
// quality_optimization recommendation describing the changes that would
// relieve them. Settings reach the host only through the SettingsApplier,
// and only when the coordinator sends apply_optimizations back; applies are
// throttled per platform with a token bucket.
//
// Issue thresholds:
//
//	dropped frames   > 200 medium, > 500 high
//	network latency  > 500ms medium, > 1000ms high
//	buffer health    < 0.5 medium, < 0.3 high
//	cpu usage        > 80% medium, > 90% high
package quality
