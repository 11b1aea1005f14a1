// ABOUTME: Word-granularity smoothing of model text deltas
// ABOUTME: Re-chunks arbitrary provider deltas into whole-word emissions

package llm

import "strings"

// SmoothWords re-chunks a model stream so text arrives one word (with
// its trailing whitespace) at a time, regardless of how the provider
// fragments its deltas. Non-text events pass through unchanged; any
// buffered partial word flushes before a tool call, Done or Err event.
func SmoothWords(in <-chan Event) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)

		var buf strings.Builder

		flush := func() {
			if buf.Len() > 0 {
				out <- Event{Text: buf.String()}
				buf.Reset()
			}
		}

		for ev := range in {
			if ev.Text == "" {
				flush()
				out <- ev
				continue
			}

			buf.WriteString(ev.Text)
			text := buf.String()

			// Emit every complete word: a run ending in whitespace
			start := 0
			for i, r := range text {
				if r == ' ' || r == '\n' || r == '\t' {
					out <- Event{Text: text[start : i+1]}
					start = i + 1
				}
			}
			buf.Reset()
			if start < len(text) {
				buf.WriteString(text[start:])
			}
		}

		flush()
	}()

	return out
}
