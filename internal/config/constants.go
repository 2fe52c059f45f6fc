package config

// Application info
const (
	AppName    = "allocator"
	AppVersion = "1.0.0"
)

// Schema profiles
const (
	// ProfileAuto accepts any column layout
	ProfileAuto = "auto"
	// ProfileFixed requires the retail sales schema in FixedSchemaColumns
	ProfileFixed = "fixed"
)

// Derived column suffixes
const (
	SuffixRevised = "_REVISED"
	SuffixNew     = "_NEW"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// FixedSchemaColumns must all be present when the fixed profile is active
var FixedSchemaColumns = []string{"SL_Q", "SL_V", "STORE", "DIVISION", "SECTION", "DEPARTMENT", "ARTICLE_NAME", "CONCEPT"}

// FixedSchemaTargets are the default revision targets under the fixed profile
var FixedSchemaTargets = []string{"SL_Q", "SL_V"}

// HTTP endpoints
const (
	APIBasePath       = "/api"
	HealthEndpoint    = "/api/health"
	MetricsEndpoint   = "/metrics"
	WebSocketEndpoint = "/ws"
)
