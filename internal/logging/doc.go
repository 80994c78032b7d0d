// Package logging configures log/slog for fuzzysearch.
//
// With --debug, JSON logs are written to a rotating file under
// ~/.fuzzysearch/logs/. Without it, only warnings and errors reach stderr
// as text, leaving stdout to the run report.
package logging
