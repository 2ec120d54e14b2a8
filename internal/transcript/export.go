package transcript

import (
	"fmt"
	"io"
)

// WriteText serializes entries as a plain-text conversation transcript, one
// line per entry:
//
//	[15:04:05] user: Hola
//	[15:04:07] model: Hello
//
// This is the download format offered by the gateway's export route.
func WriteText(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "[%s] %s: %s\n", e.Timestamp.Format("15:04:05"), e.Speaker, e.Text); err != nil {
			return fmt.Errorf("transcript: write export: %w", err)
		}
	}
	return nil
}
