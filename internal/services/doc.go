// Package services implements the business logic layer of the allocation
// revise service. It sits between the HTTP and WebSocket transports and the
// engine packages so that the interaction cycle lives in one place.
//
// # Interaction cycle
//
// Every call on AllocationService runs against one session under that
// session's lock:
//
//	1. Upload (or SelectSheet) ingests and normalizes a file into the session
//	2. SetSelection / ClearSelections update the cascading filters
//	3. Revise computes the row mask and applies the revision
//	4. Export serializes the last result as CSV or XLSX
//
// A new file identity resets selections and drops the previous result.
// A rejected parameter never touches session state.
//
// # Observability
//
// Services log through an injected *slog.Logger tagged with a component
// attribute, open spans around revision, and record business metrics
// through the infrastructure helpers. A nil metrics set disables metrics.
package services
