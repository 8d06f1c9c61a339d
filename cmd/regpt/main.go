package main

import (
	"io"
	"os"

	"github.com/go-go-golems/regpt/cmd/regpt/cmds"
	"github.com/go-go-golems/regpt/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// loaded is read before any subcommand runs.
var loaded *viper.Viper

// settingFlags maps command line flags to settings keys.
var settingFlags = map[string]string{
	"session-token":      "session_token",
	"auth-token":         "auth_token",
	"model":              "model",
	"force-arkose-token": "force_arkose_token",
	"binary-dir":         "binary_dir",
	"timeout":            "timeout",
}

var rootCmd = &cobra.Command{
	Use:          "regpt",
	Short:        "regpt talks to the ChatGPT web backend",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		v, err := settings.NewViper(configFile)
		if err != nil {
			return err
		}
		if err := bindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		if err := initLogger(v); err != nil {
			return err
		}
		log.Debug().Str("config", v.ConfigFileUsed()).Msg("Loaded configuration")
		loaded = v
		return nil
	},
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, name := range []string{"log-level", "log-format", "log-file", "with-caller", "verbose"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			return errors.Wrapf(err, "binding --%s", name)
		}
	}
	for name, key := range settingFlags {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "binding --%s", name)
		}
	}
	return nil
}

func loadSettings() (*settings.Settings, error) {
	if loaded == nil {
		return nil, errors.New("configuration not loaded")
	}
	return settings.Load(loaded)
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger(v *viper.Viper) error {
	logLevel := v.GetString("log-level")
	if v.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}
	return InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    v.GetString("log-file"),
		LogFormat:  v.GetString("log-format"),
		WithCaller: v.GetBool("with-caller"),
	})
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	// default is json
	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = log.Output(logWriter)

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", config.Level)
	}
	if level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()

	// logging flags
	pf.Bool("with-caller", false, "Log caller")
	pf.String("log-level", "warn", "Log level (trace, debug, info, warn, error, fatal)")
	pf.String("log-format", "text", "Log format (json, text)")
	pf.String("log-file", "", "Log file (default: stderr)")
	pf.Bool("verbose", false, "Verbose output")

	pf.String("config", "", "Path to config file (default ~/.regpt/config.yaml)")

	pf.String("session-token", "", "Session token (the __Secure-next-auth.session-token cookie)")
	pf.String("auth-token", "", "Access token, skips the session token exchange")
	pf.String("model", "", "Model for new conversations")
	pf.Bool("force-arkose-token", false, "Send an anti-bot token for every model")
	pf.String("binary-dir", "", "Directory holding the native token binary")
	pf.Duration("timeout", settings.DefaultTimeout, "Timeout for backend requests")

	rootCmd.AddCommand(
		cmds.NewPromptCommand(loadSettings),
		cmds.NewConversationsCommand(loadSettings),
		cmds.NewInstructionsCommand(loadSettings),
		cmds.NewBinaryCommand(loadSettings),
		cmds.NewModelsCommand(),
	)
}
