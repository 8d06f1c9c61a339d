package cmds

import (
	"context"

	"github.com/go-go-golems/regpt/pkg/chatgpt"
	"github.com/spf13/cobra"
)

func NewConversationsCommand(load SettingsLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List and delete conversations",
	}
	cmd.AddCommand(newListConversationsCommand(load))
	cmd.AddCommand(newDeleteConversationsCommand(load))
	return cmd
}

func newListConversationsCommand(load SettingsLoader) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, load, func(ctx context.Context, c *chatgpt.Client) error {
				resp, err := c.ListConversations(ctx, offset, limit)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of conversations to skip")
	cmd.Flags().IntVar(&limit, "limit", chatgpt.DefaultListLimit, "Number of conversations to list")
	return cmd
}

func newDeleteConversationsCommand(load SettingsLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, load, func(ctx context.Context, c *chatgpt.Client) error {
				results := map[string]interface{}{}
				for _, id := range args {
					resp, err := c.DeleteConversation(ctx, id)
					if err != nil {
						return err
					}
					results[id] = resp
				}
				return writeYAML(cmd.OutOrStdout(), results)
			})
		},
	}
}
