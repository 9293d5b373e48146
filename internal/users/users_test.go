package users

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUsers(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "users_config.ini")
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestGetAndProfiles(t *testing.T) {
	p := writeUsers(t, `
[standard_user]
username = alice
password = s3cret

[locked_user]
username = bob
password = p@ss=word
`)
	s, err := Load(p)
	require.NoError(t, err)

	c, err := s.Get("standard_user")
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "alice", Password: "s3cret"}, c)

	c, err = s.Get("locked_user")
	require.NoError(t, err)
	assert.Equal(t, "p@ss=word", c.Password)

	assert.Equal(t, []string{"standard_user", "locked_user"}, s.Profiles())
}

func TestGetErrors(t *testing.T) {
	s, err := Load(writeUsers(t, "[half]\nusername = carol\n"))
	require.NoError(t, err)

	_, err = s.Get("nobody")
	assert.ErrorIs(t, err, ErrUnknownProfile)
	_, err = s.Get("DEFAULT")
	assert.ErrorIs(t, err, ErrUnknownProfile)
	_, err = s.Get("half")
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmptyFile(t *testing.T) {
	s, err := Load(writeUsers(t, ""))
	require.NoError(t, err)
	assert.Empty(t, s.Profiles())
}
