package envstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Setenv(EnvUser, "")
	t.Setenv(EnvToken, "")
	t.Setenv(EnvTokenFile, "")
}

func TestEmptyStore(t *testing.T) {
	clearEnv(t)
	s := New(nil)

	creds := s.Credentials()
	assert.Equal(t, Credentials{Source: "stored"}, creds)
	assert.Empty(t, s.CLIEnv())
	assert.Empty(t, s.Token())
}

func TestSetAndRead(t *testing.T) {
	clearEnv(t)
	s := New(nil)
	s.Set("alice", "hf_sekret")

	creds := s.Credentials()
	require.Equal(t, "alice", creds.User)
	require.Equal(t, "hf_sekret", creds.Token)
	assert.True(t, creds.HasUser)
	assert.True(t, creds.HasToken)
	assert.Equal(t, "stored", creds.Source)
	assert.Equal(t, "hf_sekret", s.Token())
}

func TestSystemEnvWinsPerKey(t *testing.T) {
	t.Setenv(EnvUser, "envuser")
	t.Setenv(EnvToken, "")
	s := New(nil)
	s.Set("stored", "hf_stored")

	creds := s.Credentials()
	assert.Equal(t, "envuser", creds.User)
	assert.Equal(t, "hf_stored", creds.Token)
	assert.Equal(t, "system", creds.Source)
}

func TestSourceSystemOnTokenAlone(t *testing.T) {
	t.Setenv(EnvUser, "")
	t.Setenv(EnvToken, "hf_env")
	s := New(nil)

	creds := s.Credentials()
	assert.Equal(t, "", creds.User)
	assert.Equal(t, "hf_env", creds.Token)
	assert.False(t, creds.HasUser)
	assert.True(t, creds.HasToken)
	assert.Equal(t, "system", creds.Source)
}

func TestTokenFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("hf_filed\n"), 0o600))
	t.Setenv(EnvTokenFile, path)
	s := New(nil)

	creds := s.Credentials()
	assert.Equal(t, "hf_filed", creds.Token)
	assert.Equal(t, "system", creds.Source)

	t.Setenv(EnvToken, "hf_direct")
	assert.Equal(t, "hf_direct", s.Token(), "direct value wins over the file")
}

func TestTokenFileMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTokenFile, filepath.Join(t.TempDir(), "absent"))
	s := New(nil)

	assert.Empty(t, s.Token())
	assert.Equal(t, "stored", s.Credentials().Source)
}

func TestCLIEnvUsesStoredOnly(t *testing.T) {
	t.Setenv(EnvUser, "envuser")
	t.Setenv(EnvToken, "hf_env")
	s := New(nil)

	assert.Empty(t, s.CLIEnv(), "system values must not be duplicated")

	s.Set("alice", "hf_sekret")
	assert.Equal(t, []string{"HF_USER=alice", "HUGGINGFACE_TOKEN=hf_sekret"}, s.CLIEnv())

	s.Set("alice", "")
	assert.Equal(t, []string{"HF_USER=alice"}, s.CLIEnv())
}
