package cmds

import (
	"context"
	"io"

	"github.com/go-go-golems/regpt/pkg/chatgpt"
	"github.com/go-go-golems/regpt/pkg/settings"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// SettingsLoader returns the settings assembled from config file, environment and flags.
type SettingsLoader func() (*settings.Settings, error)

// withClient runs fn with an opened client and closes it afterwards.
func withClient(cmd *cobra.Command, load SettingsLoader, fn func(ctx context.Context, c *chatgpt.Client) error) error {
	s, err := load()
	if err != nil {
		return err
	}
	return chatgpt.Run(cmd.Context(), fn, chatgpt.WithSettings(s))
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "rendering yaml")
	}
	return enc.Close()
}
