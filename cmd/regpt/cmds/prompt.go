package cmds

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-go-golems/regpt/pkg/chatgpt"
	"github.com/go-go-golems/regpt/pkg/events"
	"github.com/go-go-golems/regpt/pkg/settings"
	"github.com/go-go-golems/regpt/pkg/stream"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type promptRequest struct {
	text           string
	conversationID string
	format         events.PrinterFormat
	mode           stream.ContentMode
	verbose        bool
}

func NewPromptCommand(load SettingsLoader) *cobra.Command {
	var (
		conversationID string
		output         string
		contentMode    string
	)

	cmd := &cobra.Command{
		Use:   "prompt [text...]",
		Short: "Send a prompt and stream the answer",
		Long: "Send a prompt and stream the answer to stdout. Without arguments the\n" +
			"prompt is read from stdin, which must not be a terminal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			req := promptRequest{
				text:           text,
				conversationID: conversationID,
				format:         events.PrinterFormat(output),
			}
			if req.format != events.PrinterFormatText && req.format != events.PrinterFormatYAML {
				return errors.Errorf("unknown output format %q (text, yaml)", output)
			}
			switch contentMode {
			case "cumulative":
				req.mode = stream.ContentCumulative
			case "incremental":
				req.mode = stream.ContentIncremental
			default:
				return errors.Errorf("unknown content mode %q (cumulative, incremental)", contentMode)
			}
			req.verbose, _ = cmd.Flags().GetBool("verbose")

			s, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runPrompt(ctx, cmd.OutOrStdout(), s, req)
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation-id", "", "Continue an existing conversation")
	cmd.Flags().StringVarP(&output, "output", "o", string(events.PrinterFormatText), "Output format (text, yaml)")
	cmd.Flags().StringVar(&contentMode, "content-mode", "cumulative", "How the backend streams message content (cumulative, incremental)")
	return cmd
}

// readPrompt joins args, or reads r when there are none and r is not a terminal.
func readPrompt(args []string, r io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := r.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "", errors.New("no prompt given and stdin is a terminal")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "reading prompt from stdin")
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", errors.New("empty prompt")
	}
	return text, nil
}

// runPrompt sends the prompt while a router prints the published events to w.
func runPrompt(ctx context.Context, w io.Writer, s *settings.Settings, req promptRequest, options ...chatgpt.Option) error {
	router, err := events.NewEventRouter(events.WithVerbose(req.verbose))
	if err != nil {
		return err
	}
	router.AddHandler("printer", events.DefaultTopic, events.PrinterFunc(w, req.format))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer func() {
			if err := router.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close event router")
			}
		}()
		select {
		case <-router.Running():
		case <-ctx.Done():
			return ctx.Err()
		}

		ctx := events.WithEventSinks(ctx, router.Sink(events.DefaultTopic))
		options = append([]chatgpt.Option{chatgpt.WithSettings(s)}, options...)
		return chatgpt.Run(ctx, func(ctx context.Context, c *chatgpt.Client) error {
			var convOptions []chatgpt.ConversationOption
			if req.conversationID != "" {
				convOptions = append(convOptions, chatgpt.WithConversationID(req.conversationID))
			}
			conv := c.NewConversation(convOptions...)
			if _, err := conv.Prompt(ctx, req.text, chatgpt.WithContentMode(req.mode)).Collect(); err != nil {
				return err
			}
			log.Info().Object("conversation", conv).Msg("Prompt answered")
			return nil
		}, options...)
	})
	return eg.Wait()
}
