// Package config handles configuration loading for stream-agents.
//
// # Overview
//
// Configuration is loaded from YAML files, or TOML files when the name ends in
// .toml, with environment variable expansion.
// Fields missing from the file keep the values returned by Default, so an
// empty file yields a runnable setup with one content-curation agent and one
// stream-quality agent under an enabled coordinator.
//
// # Configuration File
//
// Locate searches, in order:
//
//  1. Path from STREAM_AGENTS_CONFIG environment variable
//  2. ./config.yaml, then ./config.toml (current directory)
//  3. ~/.config/stream-agents/config.yaml
//
// Before loading, .env files can be applied with LoadEnvFiles so that
// ${VAR_NAME} references resolve.
//
// # Environment Variable Expansion
//
//	simulation:
//	  seed: ${STREAM_SEED}
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	coordination:
//	  interval: "60s"
//	  recovery_pause: "5s"
//	  collect_window: "5m"
//
// The same settings in TOML:
//
//	[coordination]
//	interval = "60s"
//
//	[[agents]]
//	kind = "stream_quality"
//	[agents.settings]
//	platforms = ["youtube"]
//
// # Configuration Sections
//
// Coordination:
//
//	coordination:
//	  enabled: true
//	  auto_apply_threshold: 0.8   # strictly exceeded to auto-apply
//	  history_limit: 1000         # bus history size
//	  applied_log_size: 10
//
// Agents:
//
//	agents:
//	  - id: curation
//	    kind: content_curation
//	    update_interval: "60s"
//	    settings:
//	      min_confidence: 0.6
//	      peak_hours: [19, 20, 21]
//	  - id: quality
//	    kind: stream_quality
//	    enabled: true
//	    update_interval: "30s"
//	    settings:
//	      platforms: [youtube, twitch]
//	      auto_adjust: true
//
// Agent ids default to the kind and must be unique. "coordinator" and "all"
// are reserved. Settings are passed to the agent kind unchanged.
//
// Logging:
//
//	logging:
//	  level: info    # debug, info, warn, error
//	  format: text   # text, json
package config
