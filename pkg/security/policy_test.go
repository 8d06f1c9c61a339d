package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrictPolicy(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"https://chat.openai.com/backend-api/conversation", true},
		{"https://api.github.com/repos/x/y/releases", true},
		{"http://chat.openai.com", false},
		{"ftp://chat.openai.com", false},
		{"https://localhost:8080", false},
		{"https://printer.local", false},
		{"https://127.0.0.1/", false},
		{"https://10.0.0.3/", false},
		{"https://[fe80::1%25eth0]/", false},
		{"https://0.0.0.0/", false},
		{"https:///nohost", false},
		{"https://1.1.1.1/", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := Strict.Check(tt.url)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrURLRejected)
			}
		})
	}
}

func TestLocalPolicyAllowsTestServers(t *testing.T) {
	assert.NoError(t, Local.Check("http://127.0.0.1:43127/api/auth/session"))
	assert.NoError(t, Local.Check("https://[fe80::1%25eth0]/"))
	assert.Error(t, Local.Check("gopher://127.0.0.1"))
	assert.Error(t, Local.Check("http://0.0.0.0/"))
}

func TestCheckAllNamesTheOffender(t *testing.T) {
	err := Strict.CheckAll(map[string]string{
		"base_url":   "https://chat.openai.com",
		"backup_url": "http://insecure.example.com/token",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrURLRejected)
	assert.Contains(t, err.Error(), "backup_url")
}
