package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type PrinterFormat string

const (
	// PrinterFormatText writes the answer text as it streams in.
	PrinterFormatText PrinterFormat = "text"
	// PrinterFormatYAML writes every event as a YAML document.
	PrinterFormatYAML PrinterFormat = "yaml"
)

// PrinterFunc returns a router handler writing events to w. Undecodable
// messages are logged and dropped.
func PrinterFunc(w io.Writer, format PrinterFormat) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJSON(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable event")
			return nil
		}

		if format == PrinterFormatYAML {
			b, err := yaml.Marshal(e)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "---\n%s", b)
			return err
		}

		switch ev := e.(type) {
		case *EventPartial:
			_, err = io.WriteString(w, ev.Delta)
		case *EventFinal:
			if !strings.HasSuffix(ev.Text, "\n") {
				_, err = io.WriteString(w, "\n")
			}
		case *EventError:
			_, err = fmt.Fprintf(w, "\n[error] %s\n", ev.ErrorString)
		case *EventStart, *EventContinuation:
		}
		return err
	}
}
