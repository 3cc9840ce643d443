// Package envstore keeps the Hugging Face credentials used by spawned
// lerobot commands.
//
// Credentials arrive from two places: the daemon's own environment and
// the HTTP API. Reads merge the two per key, preferring the system
// environment. Command injection uses only the values supplied over the
// API; spawned processes inherit the system environment on their own.
package envstore

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

// Environment variable names recognized by the lerobot CLI. EnvTokenFile
// names a file whose trimmed contents are the token, for deployments that
// mount secrets as files.
const (
	EnvUser      = "HF_USER"
	EnvToken     = "HUGGINGFACE_TOKEN"
	EnvTokenFile = "HUGGINGFACE_TOKEN_FILE"
)

// Credentials is the merged credential view reported over the API. Empty
// strings mean unset.
type Credentials struct {
	User     string `json:"hf_user"`
	Token    string `json:"hf_token"`
	HasUser  bool   `json:"has_user"`
	HasToken bool   `json:"has_token"`
	Source   string `json:"source"`
}

// Store holds credentials supplied over the API. Safe for concurrent use.
type Store struct {
	log logging.Logger

	mu    sync.Mutex
	user  string
	token string
}

// New returns an empty store. A nil logger binds to slog.Default.
func New(log logging.Logger) *Store {
	if log == nil {
		log = logging.New(nil)
	}
	return &Store{log: log}
}

// Set replaces the stored credentials. The token value is never logged.
func (s *Store) Set(user, token string) {
	s.mu.Lock()
	s.user = user
	s.token = token
	s.mu.Unlock()
	s.log.Info(context.Background(), "hub credentials updated",
		"user", user, logging.Redacted("token"))
}

// systemToken resolves the token from the environment, either the value
// itself or the contents of the file EnvTokenFile names. An unreadable
// file counts as unset.
func systemToken() string {
	if v := os.Getenv(EnvToken); v != "" {
		return v
	}
	path := os.Getenv(EnvTokenFile)
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Credentials reports the merged view. Source is "system" when either
// environment variable is set, matching what a spawned command would see.
func (s *Store) Credentials() Credentials {
	sysUser := os.Getenv(EnvUser)
	sysToken := systemToken()

	s.mu.Lock()
	user, token := s.user, s.token
	s.mu.Unlock()

	if sysUser != "" {
		user = sysUser
	}
	if sysToken != "" {
		token = sysToken
	}
	source := "stored"
	if sysUser != "" || sysToken != "" {
		source = "system"
	}
	return Credentials{
		User:     user,
		Token:    token,
		HasUser:  user != "",
		HasToken: token != "",
		Source:   source,
	}
}

// Token returns the merged token, preferring the system environment.
func (s *Store) Token() string {
	return s.Credentials().Token
}

// CLIEnv returns the stored credentials as KEY=VALUE pairs for spawned
// commands. System values are omitted since children inherit them.
func (s *Store) CLIEnv() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var env []string
	if s.user != "" {
		env = append(env, EnvUser+"="+s.user)
	}
	if s.token != "" {
		env = append(env, EnvToken+"="+s.token)
	}
	return env
}
