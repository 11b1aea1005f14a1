// Package dedupe provides webhook message deduplication using a
// time-based cache, so at-least-once deliveries from the messaging
// bridges are processed at most once within the window.
package dedupe
