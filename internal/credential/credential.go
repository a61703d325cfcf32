// Package credential resolves the push token and keeps it in guarded memory
// for as long as the run needs it.
package credential

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

// ErrNotFound is returned when a token is in neither the environment nor the
// .env file.
var ErrNotFound = errors.New("credential not found")

// Token is a secret held in an encrypted enclave. The plaintext is only
// materialised inside Use.
type Token struct {
	enclave *memguard.Enclave
}

// NewToken seals value. The caller's slice is wiped.
func NewToken(value []byte) *Token {
	if len(value) == 0 {
		return &Token{}
	}
	return &Token{enclave: memguard.NewEnclave(value)}
}

// Empty reports whether the token holds no secret.
func (t *Token) Empty() bool {
	return t == nil || t.enclave == nil
}

// Use decrypts the token for the duration of fn.
func (t *Token) Use(fn func(secret string) error) error {
	if t.Empty() {
		return ErrNotFound
	}
	buf, err := t.enclave.Open()
	if err != nil {
		return fmt.Errorf("open credential: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// String never prints the secret.
func (t *Token) String() string {
	if t.Empty() {
		return "<none>"
	}
	return "<redacted>"
}

// Lookup reads key from the environment first, then from envFile. An empty
// envFile skips the file fallback.
func Lookup(key, envFile string) (*Token, error) {
	if key == "" {
		return nil, fmt.Errorf("lookup credential: empty key")
	}
	v := os.Getenv(key)
	if v == "" && envFile != "" {
		v = readEnvFileVar(envFile, key)
	}
	if v == "" {
		return nil, fmt.Errorf("lookup %s: %w", key, ErrNotFound)
	}
	return NewToken([]byte(v)), nil
}

// readEnvFileVar reads the value of a specific key from a .env file.
// Supports both "KEY=VALUE" and "export KEY=VALUE" formats, with optional
// surrounding quotes. Returns empty string if the file or key is not found.
func readEnvFileVar(path, key string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.TrimSpace(parts[0]) == key {
			return unquote(strings.TrimSpace(parts[1]))
		}
	}
	return ""
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
