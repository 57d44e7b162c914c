package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	_, err := CleanPath("../secrets")
	assert.Error(t, err)

	_, err = CleanPath("")
	assert.Error(t, err)

	cleaned, err := CleanPath("keys/./rsa_key.pem")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cleaned))
	assert.Equal(t, "rsa_key.pem", filepath.Base(cleaned))
}

func TestValidatePath(t *testing.T) {
	base := t.TempDir()

	inside, err := ValidatePath(filepath.Join(base, "history", "deployment-1.json"), base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "history", "deployment-1.json"), inside)

	_, err = ValidatePath(base+"-sibling/file", base)
	assert.Error(t, err, "a sibling sharing the prefix is not inside the base")

	_, err = ValidatePath("/etc/passwd", base)
	assert.Error(t, err)
}

func TestJoinPath(t *testing.T) {
	base := t.TempDir()

	joined, err := JoinPath(base, ".snowflake", "rsa_key.pub")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, ".snowflake", "rsa_key.pub"), joined)

	_, err = JoinPath(base, "..", "elsewhere")
	assert.Error(t, err)
}

func TestExpandHomeAndAppDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, "keys"), ExpandHome("~/keys"))
	assert.Equal(t, "relative/keys", ExpandHome("relative/keys"))
	assert.Equal(t, filepath.Join(home, AppDirName), AppDir())

	_, err := os.Stat(AppDir())
	assert.True(t, os.IsNotExist(err), "AppDir must not create the directory")
}
