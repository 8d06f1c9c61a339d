package cmds

import (
	"context"

	"github.com/go-go-golems/regpt/pkg/chatgpt"
	"github.com/spf13/cobra"
)

func NewInstructionsCommand(load SettingsLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instructions",
		Short: "Manage custom instructions",
	}

	var aboutUser, aboutModel string
	var enabled bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Set what the assistant knows about you and how it responds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, load, func(ctx context.Context, c *chatgpt.Client) error {
				resp, err := c.SetCustomInstructions(ctx, aboutUser, aboutModel, enabled)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), resp)
			})
		},
	}
	set.Flags().StringVar(&aboutUser, "about-user", "", "What the assistant should know about you")
	set.Flags().StringVar(&aboutModel, "about-model", "", "How the assistant should respond")
	set.Flags().BoolVar(&enabled, "enabled", true, "Use the instructions for new chats")

	cmd.AddCommand(set)
	return cmd
}
