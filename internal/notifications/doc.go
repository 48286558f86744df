// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Callers publish an
// Event with a loosely typed Payload; formatting lives here so the runner and
// the CLI never build message text themselves.
package notifications
