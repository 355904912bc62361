// Package observability provides logging and metrics support for the
// research finder.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stderr",
//	    File:   "/var/log/research-finder.log",
//	})
//
// Add run context to a logger:
//
//	logger = observability.WithRunContext(logger, requestID, runID)
//
// # Metrics
//
//	metrics := observability.NewMetrics("research_finder")
//	metrics.RecordSearchCompleted("arxiv", 25, 0.8)
//
// # Standard Fields
//
//   - request_id: HTTP request identifier
//   - run_id: aggregation run identifier
//   - source: provider (semantic_scholar, arxiv, ...)
//   - mode: search mode (keyword, title, author)
//   - cache_key: cache entry key
//
// All components are safe for concurrent use from multiple goroutines.
package observability
