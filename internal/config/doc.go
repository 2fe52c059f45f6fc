// Package config loads the allocator configuration.
//
// Values are resolved in this order, highest priority first:
//
//	1. Environment variables prefixed with ALLOC_
//	2. A YAML file (ALLOC_CONFIG_FILE, config.yaml or configs/config.yaml)
//	3. The default tags on the config structs
//
// Nested sections map to underscore-joined names:
//
//	ALLOC_SERVER_PORT=8080
//	ALLOC_ENGINE_NUMERIC_THRESHOLD=0.5
//	ALLOC_ENGINE_SCHEMA_PROFILE=fixed
//	ALLOC_SESSION_TTL=30m
//	ALLOC_UPLOAD_MAX_BYTES=10485760
//
// Load validates the result; an unknown schema profile, a threshold outside
// [0,1) or a non-positive limit is rejected at startup.
package config
