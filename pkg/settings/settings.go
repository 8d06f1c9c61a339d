// Package settings holds the client configuration: where the backend lives,
// which credentials to use and how requests behave.
package settings

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/regpt/pkg/models"
	"github.com/go-go-golems/regpt/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "regpt"

	DefaultBaseURL    = "https://chat.openai.com"
	DefaultBackupURL  = "https://arkose-token-generator.zaieem.repl.co/token"
	DefaultReleaseURL = "https://api.github.com/repos/Zai-Kun/reverse-engineered-chatgpt/releases"
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36"
	DefaultTimeout    = 10 * time.Minute
)

// Endpoints are either absolute URLs or paths relative to BaseURL.
type Endpoints struct {
	BaseURL            string `mapstructure:"base_url" yaml:"base_url"`
	AuthSession        string `mapstructure:"auth_session" yaml:"auth_session"`
	Conversation       string `mapstructure:"conversation" yaml:"conversation"`
	Conversations      string `mapstructure:"conversations" yaml:"conversations"`
	CustomInstructions string `mapstructure:"custom_instructions" yaml:"custom_instructions"`
	ChatRequirements   string `mapstructure:"chat_requirements" yaml:"chat_requirements"`
	BackupToken        string `mapstructure:"backup_token" yaml:"backup_token"`
	Releases           string `mapstructure:"releases" yaml:"releases"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		BaseURL:            DefaultBaseURL,
		AuthSession:        "/api/auth/session",
		Conversation:       "/backend-api/conversation",
		Conversations:      "/backend-api/conversations",
		CustomInstructions: "/backend-api/user_system_messages",
		ChatRequirements:   "/backend-api/sentinel/chat-requirements",
		BackupToken:        DefaultBackupURL,
		Releases:           DefaultReleaseURL,
	}
}

// Resolve turns an endpoint into an absolute URL.
func (e Endpoints) Resolve(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.IsAbs() {
		return endpoint
	}
	return strings.TrimRight(e.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// ConversationURL is the URL of a single conversation.
func (e Endpoints) ConversationURL(id string) string {
	return e.Resolve(e.Conversation) + "/" + url.PathEscape(id)
}

// Host is the host part of BaseURL, sent as Alt-Used.
func (e Endpoints) Host() string {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Origin is the scheme and host of BaseURL.
func (e Endpoints) Origin() string {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return e.BaseURL
	}
	return u.Scheme + "://" + u.Host
}

func (e Endpoints) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("base_url", e.BaseURL)
	ev.Str("backup_token", e.BackupToken)
	ev.Str("releases", e.Releases)
}

type Settings struct {
	Endpoints Endpoints `mapstructure:"endpoints" yaml:"endpoints"`

	SessionToken string `mapstructure:"session_token" yaml:"session_token,omitempty"`
	AuthToken    string `mapstructure:"auth_token" yaml:"auth_token,omitempty"`

	Model     string        `mapstructure:"model" yaml:"model"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// ForceArkoseToken sends a token for every model, not only the ones requiring it.
	ForceArkoseToken bool `mapstructure:"force_arkose_token" yaml:"force_arkose_token"`
	// ChatRequirements requests a sentinel token before each conversation request.
	ChatRequirements bool `mapstructure:"chat_requirements" yaml:"chat_requirements"`
	// BinaryDir is where the native token binary is kept.
	BinaryDir string `mapstructure:"binary_dir" yaml:"binary_dir,omitempty"`
	// AllowInsecureEndpoints permits plain http and local network endpoints.
	AllowInsecureEndpoints bool `mapstructure:"allow_insecure_endpoints" yaml:"allow_insecure_endpoints"`
}

func Default() *Settings {
	return &Settings{
		Endpoints:        DefaultEndpoints(),
		Model:            models.Default.Name,
		UserAgent:        DefaultUserAgent,
		Timeout:          DefaultTimeout,
		ChatRequirements: true,
	}
}

func (s *Settings) Clone() *Settings {
	ret := *s
	return &ret
}

// Policy is the URL policy applied to every endpoint.
func (s *Settings) Policy() security.URLPolicy {
	if s.AllowInsecureEndpoints {
		return security.Local
	}
	return security.Strict
}

func (s *Settings) Validate() error {
	if s.Timeout < 0 {
		return errors.Errorf("timeout must not be negative, got %s", s.Timeout)
	}
	if _, err := models.FromName(s.Model); err != nil {
		return err
	}
	e := s.Endpoints
	return s.Policy().CheckAll(map[string]string{
		"endpoints.base_url":            e.BaseURL,
		"endpoints.auth_session":        e.Resolve(e.AuthSession),
		"endpoints.conversation":        e.Resolve(e.Conversation),
		"endpoints.conversations":       e.Resolve(e.Conversations),
		"endpoints.custom_instructions": e.Resolve(e.CustomInstructions),
		"endpoints.chat_requirements":   e.Resolve(e.ChatRequirements),
		"endpoints.backup_token":        e.Resolve(e.BackupToken),
		"endpoints.releases":            e.Resolve(e.Releases),
	})
}

// SetDefaults registers every key with v so that environment variables are
// picked up for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("endpoints.base_url", d.Endpoints.BaseURL)
	v.SetDefault("endpoints.auth_session", d.Endpoints.AuthSession)
	v.SetDefault("endpoints.conversation", d.Endpoints.Conversation)
	v.SetDefault("endpoints.conversations", d.Endpoints.Conversations)
	v.SetDefault("endpoints.custom_instructions", d.Endpoints.CustomInstructions)
	v.SetDefault("endpoints.chat_requirements", d.Endpoints.ChatRequirements)
	v.SetDefault("endpoints.backup_token", d.Endpoints.BackupToken)
	v.SetDefault("endpoints.releases", d.Endpoints.Releases)
	v.SetDefault("session_token", "")
	v.SetDefault("auth_token", "")
	v.SetDefault("model", d.Model)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("force_arkose_token", d.ForceArkoseToken)
	v.SetDefault("chat_requirements", d.ChatRequirements)
	v.SetDefault("binary_dir", "")
	v.SetDefault("allow_insecure_endpoints", false)
}

// NewViper returns a viper instance reading configPath, or config.yaml from
// the usual search paths when configPath is empty, with REGPT_* environment
// overrides. A missing config file is not an error.
func NewViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.regpt")
		if xdg, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(xdg, "regpt"))
		}
	}

	err := v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return v, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	return v, nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	s := Default()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "decoding settings")
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}
	return s, nil
}
