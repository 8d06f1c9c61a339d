package cmds

import (
	"github.com/go-go-golems/regpt/pkg/models"
	"github.com/spf13/cobra"
)

func NewModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models conversations can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeYAML(cmd.OutOrStdout(), models.All())
		},
	}
}
