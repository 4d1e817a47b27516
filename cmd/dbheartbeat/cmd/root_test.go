package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(viper.Reset)
	root := RootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheck_MissingConfigurationFails(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("DATABASE_NAMES", "")

	_, err := execute(t, "check")

	assert.Error(t, err)
}

func TestCheck_HealthySQLiteTarget(t *testing.T) {
	t.Setenv("DATABASE_NAMES", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_NAME", filepath.Join(t.TempDir(), "heartbeat.db"))

	out, err := execute(t, "check")

	require.NoError(t, err)
	assert.Equal(t, "successful\n", out)
}

func TestEnsureSchema_SQLiteTarget(t *testing.T) {
	t.Setenv("DATABASE_NAMES", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_NAME", filepath.Join(t.TempDir(), "heartbeat.db"))

	_, err := execute(t, "ensure-schema")

	assert.NoError(t, err)
}
