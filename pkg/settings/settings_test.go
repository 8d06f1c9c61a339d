package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-go-golems/regpt/pkg/models"
	"github.com/go-go-golems/regpt/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, "https://chat.openai.com/backend-api/conversation", s.Endpoints.Resolve(s.Endpoints.Conversation))
	assert.Equal(t, "https://chat.openai.com/api/auth/session", s.Endpoints.Resolve(s.Endpoints.AuthSession))
	assert.Equal(t, DefaultBackupURL, s.Endpoints.Resolve(s.Endpoints.BackupToken))
	assert.Equal(t, "https://chat.openai.com/backend-api/conversation/abc-123", s.Endpoints.ConversationURL("abc-123"))
	assert.Equal(t, "chat.openai.com", s.Endpoints.Host())
	assert.Equal(t, "https://chat.openai.com", s.Endpoints.Origin())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session_token: from-file
model: gpt-4
timeout: 30s
endpoints:
  base_url: https://chat.example.com/
`), 0o600))
	t.Setenv("REGPT_SESSION_TOKEN", "from-env")
	t.Setenv("REGPT_FORCE_ARKOSE_TOKEN", "true")

	v, err := NewViper(path)
	require.NoError(t, err)
	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "from-env", s.SessionToken)
	assert.Equal(t, models.GPT4.Name, s.Model)
	assert.Equal(t, 30*time.Second, s.Timeout)
	assert.True(t, s.ForceArkoseToken)
	assert.True(t, s.ChatRequirements)
	assert.Equal(t, "https://chat.example.com/backend-api/conversations", s.Endpoints.Resolve(s.Endpoints.Conversations))
	assert.Equal(t, "/api/auth/session", s.Endpoints.AuthSession)
}

func TestLoadRejectsUnknownModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: gpt-9\n"), 0o600))

	v, err := NewViper(path)
	require.NoError(t, err)
	_, err = Load(v)
	assert.ErrorIs(t, err, models.ErrUnknownModel)
}

func TestValidateEndpoints(t *testing.T) {
	s := Default()
	s.Endpoints.BaseURL = "http://127.0.0.1:8080"
	err := s.Validate()
	assert.ErrorIs(t, err, security.ErrURLRejected)
	assert.Contains(t, err.Error(), "endpoints.")

	s.AllowInsecureEndpoints = true
	assert.NoError(t, s.Validate())

	s.Timeout = -time.Second
	assert.Error(t, s.Validate())
}
