// Package git reads the workspace repository a pipeline file lives in, so
// deployments can record the commit they came from and replay a pipeline
// as it was at an earlier revision.
package git

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"flakeview/internal/common"
	"flakeview/pkg/errors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// CommitInfo represents information about a git commit
type CommitInfo struct {
	Hash    string
	Message string
	Author  string
	Date    time.Time
}

// ShortHash is the abbreviated commit hash.
func (c CommitInfo) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

// GitManager handles git operations for the repository containing a path
type GitManager struct {
	root string
	repo *git.Repository
}

// NewGitManager opens the repository containing path, searching parent
// directories for .git.
func NewGitManager(path string) (*GitManager, error) {
	cleaned, err := common.CleanPath(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid repository path").
			WithContext("path", path)
	}

	repo, err := git.PlainOpenWithOptions(cleaned, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRepoNotFound, "Not inside a git repository").
			WithContext("path", cleaned)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRepoNotFound, "Repository has no worktree").
			WithContext("path", cleaned)
	}

	return &GitManager{root: wt.Filesystem.Root(), repo: repo}, nil
}

// Root is the worktree directory.
func (gm *GitManager) Root() string {
	return gm.root
}

// Head returns the commit HEAD points at.
func (gm *GitManager) Head() (*CommitInfo, error) {
	return gm.Commit("HEAD")
}

// Commit resolves a revision (hash, branch, tag, HEAD~1, ...).
func (gm *GitManager) Commit(rev string) (*CommitInfo, error) {
	hash, err := gm.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRevisionNotFound, fmt.Sprintf("Unknown revision %q", rev)).
			WithContext("repository", gm.root)
	}

	c, err := gm.repo.CommitObject(*hash)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRevisionNotFound, "Failed to read commit").
			WithContext("commit", hash.String())
	}

	return &CommitInfo{
		Hash:    c.Hash.String(),
		Message: strings.TrimSpace(c.Message),
		Author:  c.Author.Name,
		Date:    c.Author.When,
	}, nil
}

// Branch returns the checked out branch, or "" for a detached HEAD.
func (gm *GitManager) Branch() (string, error) {
	ref, err := gm.repo.Head()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeRevisionNotFound, "Failed to read HEAD")
	}
	if !ref.Name().IsBranch() {
		return "", nil
	}
	return ref.Name().Short(), nil
}

// IsDirty reports uncommitted changes in the worktree.
func (gm *GitManager) IsDirty() (bool, error) {
	wt, err := gm.repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to read worktree status")
	}
	return !status.IsClean(), nil
}

// FileAt returns the content of path as of rev. path may be absolute or
// relative to the working directory, and must lie inside the worktree.
func (gm *GitManager) FileAt(rev, path string) ([]byte, error) {
	rel, err := gm.relative(path)
	if err != nil {
		return nil, err
	}

	info, err := gm.Commit(rev)
	if err != nil {
		return nil, err
	}

	c, err := gm.repo.CommitObject(plumbing.NewHash(info.Hash))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRevisionNotFound, "Failed to read commit").
			WithContext("commit", info.Hash)
	}

	file, err := c.File(rel)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileNotFound, fmt.Sprintf("%s does not exist at %s", rel, info.ShortHash())).
			WithContext("revision", rev)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to read file from commit").
			WithContext("file", rel)
	}
	return []byte(content), nil
}

func (gm *GitManager) relative(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid path").WithContext("path", path)
	}

	// the worktree root is reported with symlinks resolved
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(resolved, filepath.Base(abs))
	}
	root := gm.root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodeInvalidInput, "Path is outside the repository").
			WithContext("path", path).
			WithContext("repository", gm.root)
	}
	return filepath.ToSlash(rel), nil
}

// HeadCommit returns the HEAD hash of the repository containing dir, or ""
// when dir is not in a repository or it has no commits.
func HeadCommit(dir string) string {
	gm, err := NewGitManager(dir)
	if err != nil {
		return ""
	}
	head, err := gm.Head()
	if err != nil {
		return ""
	}
	return head.Hash
}
