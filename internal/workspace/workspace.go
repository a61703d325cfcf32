// Package workspace allocates and removes the per-run directories that
// repositories are cloned into.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Manager hands out unique working directories under a single root.
type Manager struct {
	root string
	now  func() time.Time
}

// NewManager creates a workspace manager rooted at root.
func NewManager(root string) *Manager {
	return &Manager{root: root, now: time.Now}
}

// Path returns a fresh, not yet created path for a team's run. Two calls never
// return the same path, even within the same millisecond.
func (m *Manager) Path(team string) string {
	salt := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := fmt.Sprintf("%s_%d_%s", Sanitize(team), m.now().UnixMilli(), salt)
	return filepath.Join(m.root, name)
}

// Create ensures the root exists and returns a fresh workspace path. The leaf
// directory itself is left for the clone to create.
func (m *Manager) Create(team string) (string, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("create workspace root: %w", err)
	}
	return m.Path(team), nil
}

// Remove deletes a workspace. Paths outside the root are refused.
func (m *Manager) Remove(path string) error {
	if path == "" {
		return nil
	}
	if !m.Owns(path) {
		return fmt.Errorf("remove workspace %q: not under %q", path, m.root)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

// Owns reports whether path is strictly inside the workspace root.
func (m *Manager) Owns(path string) bool {
	root, err := filepath.Abs(m.root)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

var nonAlphaNum = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Sanitize turns a team name into a directory-safe slug.
func Sanitize(name string) string {
	s := nonAlphaNum.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.Trim(s, "_-")
	if len(s) > 60 {
		s = s[:60]
	}
	if s == "" {
		return "team"
	}
	return s
}
