package cmds

import (
	"net/http"

	"github.com/go-go-golems/regpt/pkg/arkose"
	"github.com/go-go-golems/regpt/pkg/chatgpt"
	"github.com/spf13/cobra"
)

type binaryStatus struct {
	Path       string `yaml:"path"`
	MD5        string `yaml:"md5,omitempty"`
	Downloaded bool   `yaml:"downloaded"`
}

func NewBinaryCommand(load SettingsLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "binary",
		Short: "Manage the native token binary",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "update",
		Short: "Download the token binary if it is missing or outdated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := binaryManager(load)
			if err != nil {
				return err
			}
			downloaded, err := m.Ensure(cmd.Context())
			if err != nil {
				return err
			}
			return writeStatus(cmd, m, downloaded)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show where the token binary is kept and its checksum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := binaryManager(load)
			if err != nil {
				return err
			}
			return writeStatus(cmd, m, false)
		},
	})

	return cmd
}

func binaryManager(load SettingsLoader) (*arkose.BinaryManager, error) {
	s, err := load()
	if err != nil {
		return nil, err
	}
	return chatgpt.NewBinaryManager(s, &http.Client{Timeout: s.Timeout}), nil
}

func writeStatus(cmd *cobra.Command, m *arkose.BinaryManager, downloaded bool) error {
	sum, err := m.LocalChecksum()
	if err != nil {
		return err
	}
	return writeYAML(cmd.OutOrStdout(), binaryStatus{Path: m.Path(), MD5: sum, Downloaded: downloaded})
}
