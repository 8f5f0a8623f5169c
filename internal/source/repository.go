package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	giturls "github.com/whilp/git-urls"
)

var (
	// ErrEmptyRepositoryURL indicates no repository URL was given.
	ErrEmptyRepositoryURL = errors.New("repository URL required")
	// ErrNotWorkingCopy indicates the directory is not inside a git repository.
	ErrNotWorkingCopy = errors.New("not a git working copy")
)

// ValidateRepositoryURL checks that raw is a git remote the backend can
// clone (https, ssh or scp-like) and returns it trimmed.
func ValidateRepositoryURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyRepositoryURL
	}
	u, err := giturls.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL %q: %w", trimmed, err)
	}
	if u.Scheme == "file" || u.Hostname() == "" {
		return "", fmt.Errorf("invalid repository URL %q: a remote host is required", trimmed)
	}
	path := strings.Trim(strings.TrimSuffix(u.Path, ".git"), "/")
	if path == "" {
		return "", fmt.Errorf("invalid repository URL %q: missing repository path", trimmed)
	}
	return trimmed, nil
}

// RepositoryName returns "host/owner/repo" for display.
func RepositoryName(raw string) string {
	u, err := giturls.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	path := strings.Trim(strings.TrimSuffix(u.Path, ".git"), "/")
	return u.Hostname() + "/" + path
}

// WorkingCopy is the origin remote and checked-out branch of a local clone.
type WorkingCopy struct {
	URL    string
	Branch string
}

// DetectWorkingCopy reads the "origin" remote and current branch of the git
// repository containing dir.
func DetectWorkingCopy(dir string) (WorkingCopy, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return WorkingCopy{}, ErrNotWorkingCopy
		}
		return WorkingCopy{}, fmt.Errorf("failed to open repository: %w", err)
	}

	var wc WorkingCopy
	remote, err := repo.Remote("origin")
	if err != nil {
		return WorkingCopy{}, fmt.Errorf("failed to read origin remote: %w", err)
	}
	if urls := remote.Config().URLs; len(urls) > 0 {
		wc.URL = urls[0]
	}

	head, err := repo.Head()
	if err == nil && head.Name().IsBranch() {
		wc.Branch = head.Name().Short()
	}
	return wc, nil
}
