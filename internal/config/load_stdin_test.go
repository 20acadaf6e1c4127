package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSingleStdinFileSource(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr []string
	}{
		{
			name: "plain paths",
			files: map[string]string{
				"database.dsn_file":            "/run/secrets/dsn",
				"database.password_file":       "/run/secrets/password",
				"server.admin.auth_token_file": "/run/secrets/admin",
			},
		},
		{
			name: "single stdin source",
			files: map[string]string{
				"database.dsn_file":         "",
				"server.cursor_secret_file": "@-",
			},
		},
		{
			name: "stdin twice",
			files: map[string]string{
				"database.dsn_file":         "@-",
				"database.password_file":    " @- ",
				"server.cursor_secret_file": "@-",
			},
			wantErr: []string{"database.dsn_file", "database.password_file", "server.cursor_secret_file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.files {
				v.Set(k, val)
			}

			err := validateSingleStdinFileSource(v)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, key := range tt.wantErr {
				assert.Contains(t, err.Error(), key)
			}
		})
	}
}

func TestLoadSecretFile(t *testing.T) {
	secret := fileSecret{key: "server.cursor_secret", fileKey: "server.cursor_secret_file", what: "cursor secret"}
	path := filepath.Join(t.TempDir(), "cursor")
	require.NoError(t, os.WriteFile(path, []byte("  s3cret\n"), 0o600))

	t.Run("reads and trims", func(t *testing.T) {
		v := viper.New()
		v.Set(secret.fileKey, path)
		require.NoError(t, loadSecretFile(v, secret))
		assert.Equal(t, "s3cret", v.GetString(secret.key))
	})

	t.Run("set value is kept", func(t *testing.T) {
		v := viper.New()
		v.Set(secret.key, "inline")
		v.Set(secret.fileKey, path)
		require.NoError(t, loadSecretFile(v, secret))
		assert.Equal(t, "inline", v.GetString(secret.key))
	})

	t.Run("missing file", func(t *testing.T) {
		v := viper.New()
		v.Set(secret.fileKey, filepath.Join(t.TempDir(), "absent"))
		err := loadSecretFile(v, secret)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cursor secret file")
	})
}
