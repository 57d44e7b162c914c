package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"flakeview/pkg/errors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitFile(t *testing.T, repo *git.Repository, dir, name, content, message string, when time.Time) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))

	worktree, err := repo.Worktree()
	require.NoError(t, err)
	_, err = worktree.Add(filepath.ToSlash(name))
	require.NoError(t, err)

	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  when,
		},
	})
	require.NoError(t, err)
}

func TestGitManager(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour)
	commitFile(t, repo, dir, "pipelines/views.yaml", "views: []\n", "Add empty pipeline", base)
	commitFile(t, repo, dir, "pipelines/views.yaml", "views:\n  - name: a\n", "Add view a", base.Add(time.Minute))

	// opened from a subdirectory
	gm, err := NewGitManager(filepath.Join(dir, "pipelines"))
	require.NoError(t, err)

	t.Run("Head", func(t *testing.T) {
		head, err := gm.Head()
		require.NoError(t, err)
		assert.Len(t, head.Hash, 40)
		assert.Len(t, head.ShortHash(), 7)
		assert.Equal(t, "Add view a", head.Message)
		assert.Equal(t, "Test User", head.Author)

		assert.Equal(t, head.Hash, HeadCommit(filepath.Join(dir, "pipelines")))
	})

	t.Run("Commit", func(t *testing.T) {
		prev, err := gm.Commit("HEAD~1")
		require.NoError(t, err)
		assert.Equal(t, "Add empty pipeline", prev.Message)

		_, err = gm.Commit("no-such-branch")
		assert.Equal(t, errors.ErrCodeRevisionNotFound, errors.GetErrorCode(err))
	})

	t.Run("Branch", func(t *testing.T) {
		branch, err := gm.Branch()
		require.NoError(t, err)
		assert.NotEmpty(t, branch)
	})

	t.Run("FileAt", func(t *testing.T) {
		path := filepath.Join(dir, "pipelines", "views.yaml")

		old, err := gm.FileAt("HEAD~1", path)
		require.NoError(t, err)
		assert.Equal(t, "views: []\n", string(old))

		current, err := gm.FileAt("HEAD", path)
		require.NoError(t, err)
		assert.Contains(t, string(current), "name: a")

		_, err = gm.FileAt("HEAD", filepath.Join(dir, "missing.yaml"))
		assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetErrorCode(err))

		_, err = gm.FileAt("HEAD", filepath.Join(t.TempDir(), "outside.yaml"))
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
	})

	t.Run("IsDirty", func(t *testing.T) {
		dirty, err := gm.IsDirty()
		require.NoError(t, err)
		assert.False(t, dirty)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "pipelines", "views.yaml"), []byte("changed"), 0644))
		dirty, err = gm.IsDirty()
		require.NoError(t, err)
		assert.True(t, dirty)
	})
}

func TestNotARepository(t *testing.T) {
	dir := t.TempDir()

	_, err := NewGitManager(dir)
	assert.Equal(t, errors.ErrCodeRepoNotFound, errors.GetErrorCode(err))
	assert.Empty(t, HeadCommit(dir))
}

func TestEmptyRepository(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	assert.Empty(t, HeadCommit(dir))
}
