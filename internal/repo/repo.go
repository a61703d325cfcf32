// Package repo clones a repository into a working copy, applies file
// replacements and publishes the result on a fix branch.
package repo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/credential"
)

// ErrPathEscape is returned when a file path would land outside the working copy.
var ErrPathEscape = errors.New("path escapes working copy")

// Manager performs git operations on working copies.
type Manager struct {
	log *zap.Logger
}

// NewManager creates a repository manager. A nil logger discards output.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{log: log}
}

// Clone clones repoURL into dir. dir must not exist or be empty.
func (m *Manager) Clone(ctx context.Context, repoURL, dir string) error {
	if strings.TrimSpace(repoURL) == "" {
		return fmt.Errorf("clone: empty repository URL")
	}
	m.log.Info("cloning repository", zap.String("url", RedactURL(repoURL)), zap.String("dir", dir))

	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: repoURL})
	if err != nil {
		return fmt.Errorf("clone %s: %w", RedactURL(repoURL), err)
	}
	return nil
}

// NormalizePath turns an oracle-supplied file path into a clean path relative
// to the working copy at localPath. Backslashes become slashes; leading "/",
// "./", "repo/" and a leading component naming the working copy itself are
// stripped.
// Paths that still resolve outside the working copy, or into .git, are
// rejected with ErrPathEscape.
func NormalizePath(localPath, rel string) (string, error) {
	p := strings.TrimSpace(strings.ReplaceAll(rel, `\`, "/"))
	for {
		trimmed := strings.TrimPrefix(p, "/")
		trimmed = strings.TrimPrefix(trimmed, "./")
		trimmed = strings.TrimPrefix(trimmed, "repo/")
		if trimmed == p {
			break
		}
		p = trimmed
	}
	if base := filepath.Base(localPath); base != "" {
		p = strings.TrimPrefix(p, base+"/")
	}

	p = path.Clean(p)
	if p == "." || p == "" {
		return "", fmt.Errorf("normalize %q: empty path", rel)
	}
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("normalize %q: %w", rel, ErrPathEscape)
	}
	if p == ".git" || strings.HasPrefix(p, ".git/") {
		return "", fmt.Errorf("normalize %q: %w", rel, ErrPathEscape)
	}
	return p, nil
}

// WriteFile overwrites (or creates) the file rel inside localPath with
// content and returns the normalized relative path that was written.
func (m *Manager) WriteFile(localPath, rel, content string) (string, error) {
	clean, err := NormalizePath(localPath, rel)
	if err != nil {
		return "", err
	}
	full := filepath.Join(localPath, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}
	if err := checkWithin(localPath, filepath.Dir(full)); err != nil {
		return "", fmt.Errorf("write %s: %w", clean, err)
	}

	mode := os.FileMode(0o644)
	if info, err := os.Lstat(full); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("write %s: %w", clean, ErrPathEscape)
		}
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(full, []byte(content), mode); err != nil {
		return "", fmt.Errorf("write %s: %w", clean, err)
	}
	m.log.Debug("wrote file", zap.String("file", clean), zap.Int("bytes", len(content)))
	return clean, nil
}

// checkWithin resolves symlinks in dir and verifies it is inside root.
func checkWithin(root, dir string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(realRoot, realDir)
	if err != nil {
		return err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ErrPathEscape
	}
	return nil
}

// PublishRequest describes a commit and optional push of the working copy.
type PublishRequest struct {
	Dir         string
	Branch      string
	Message     string
	AuthorName  string
	AuthorEmail string
	Push        bool
	Token       *credential.Token // nil for anonymous or local remotes
}

// PublishResult reports what CommitAndPush did.
type PublishResult struct {
	Branch     string `json:"branch"`
	CommitHash string `json:"commit_hash"`
	Pushed     bool   `json:"pushed"`
	RemoteURL  string `json:"remote_url,omitempty"`
}

// CommitAndPush creates Branch from the current HEAD keeping the working
// tree, stages every change, commits and, when Push is set, pushes the branch
// to origin. The commit is made even when nothing changed.
func (m *Manager) CommitAndPush(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if req.Branch == "" {
		return nil, fmt.Errorf("publish: empty branch name")
	}
	r, err := git.PlainOpen(req.Dir)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	wt, err := r.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(req.Branch)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true, Keep: true}); err != nil {
		return nil, fmt.Errorf("create branch %s: %w", req.Branch, err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("stage changes: %w", err)
	}

	hash, err := wt.Commit(req.Message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  req.AuthorName,
			Email: req.AuthorEmail,
			When:  time.Now(),
		},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	res := &PublishResult{Branch: req.Branch, CommitHash: hash.String()}
	if remote, err := r.Remote(git.DefaultRemoteName); err == nil && len(remote.Config().URLs) > 0 {
		res.RemoteURL = remote.Config().URLs[0]
	}
	m.log.Info("committed fixes", zap.String("branch", req.Branch), zap.String("commit", res.CommitHash))

	if !req.Push {
		return res, nil
	}
	if res.RemoteURL == "" {
		return nil, fmt.Errorf("push %s: no origin remote", req.Branch)
	}

	push := func(auth transport.AuthMethod) error {
		refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", branchRef, branchRef))
		err := r.PushContext(ctx, &git.PushOptions{
			RemoteName: git.DefaultRemoteName,
			RefSpecs:   []gitconfig.RefSpec{refSpec},
			Auth:       auth,
		})
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return err
	}

	if req.Token.Empty() || !isHTTP(res.RemoteURL) {
		err = push(nil)
	} else {
		err = req.Token.Use(func(secret string) error {
			return push(&http.BasicAuth{Username: "x-access-token", Password: secret})
		})
	}
	if err != nil {
		return nil, fmt.Errorf("push %s to %s: %w", req.Branch, RedactURL(res.RemoteURL), err)
	}
	res.Pushed = true
	m.log.Info("pushed branch", zap.String("branch", req.Branch), zap.String("remote", RedactURL(res.RemoteURL)))
	return res, nil
}

func isHTTP(remote string) bool {
	u, err := url.Parse(remote)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// RedactURL hides any password embedded in a remote URL.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

var nonBranchChars = regexp.MustCompile(`[^a-zA-Z0-9/_-]+`)
var whitespace = regexp.MustCompile(`\s+`)

// BranchName builds the fix branch: TEAM_LEADER_AI_Fix with whitespace
// runs replaced by underscores and both names upper-cased.
func BranchName(team, leader string) string {
	part := func(s string) string {
		return strings.ToUpper(whitespace.ReplaceAllString(strings.TrimSpace(s), "_"))
	}
	name := fmt.Sprintf("%s_%s_AI_Fix", part(team), part(leader))
	return sanitizeBranch(name)
}

// sanitizeBranch cleans up a branch name.
func sanitizeBranch(name string) string {
	s := nonBranchChars.ReplaceAllString(name, "-")
	s = strings.Trim(s, "-_/")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
