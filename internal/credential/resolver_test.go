package credential

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/require"

	"github.com/nhle/studiosync/internal/model"
)

func TestResolve(t *testing.T) {
	r := NewResolver(
		map[string]string{"Jordi": "jordi_work"},
		MapSource{
			"IMAP_USER_MONTSE":     "montse@studio.example",
			"IMAP_PASS_MONTSE":     "s3cret",
			"IMAP_USER_JORDI_WORK": "jordi@studio.example",
			"IMAP_PASS_JORDI_WORK": "pw",
			"IMAP_USER_ALBA":       "alba@studio.example",
			"IMAP_PASS_ALBA":       "   ",
			"IMAP_HOST":            "imap.example.com",
		},
	)

	creds := r.Resolve("montse")
	require.True(t, creds.IsSome())
	require.Equal(t, model.Credentials{
		Identity: "montse",
		Username: "montse@studio.example",
		Secret:   "s3cret",
		Host:     "imap.example.com",
	}, creds.UnwrapOr(model.Credentials{}))

	require.Equal(t, "JORDI_WORK", r.Key("jordi"))
	require.True(t, r.Resolve("jordi").IsSome())

	// A blank secret reads as absent.
	require.True(t, r.Resolve("alba").IsNone())
	require.True(t, r.Resolve("ghost").IsNone())
}

func TestResolveSourcePriority(t *testing.T) {
	t.Setenv("IMAP_USER_MONTSE", "env-user")
	t.Setenv("IMAP_PASS_MONTSE", "env-pass")

	r := NewResolver(nil, EnvSource{}, MapSource{
		"IMAP_USER_MONTSE": "file-user",
		"IMAP_PASS_MONTSE": "file-pass",
		"IMAP_PORT":        "143",
	})

	creds := r.Resolve("Montse").UnwrapOr(model.Credentials{})
	require.Equal(t, "env-user", creds.Username)
	require.Equal(t, "env-pass", creds.Secret)
	require.Equal(t, "143", creds.Port)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	src, err := LoadEnvFile(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	require.Empty(t, src)

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"IMAP_USER_MONTSE=montse@studio.example\n"+
			"IMAP_PASS_MONTSE=\"with spaces\"\n",
	), 0o600))

	src, err = LoadEnvFile(path)
	require.NoError(t, err)

	v, ok := src.Lookup("IMAP_PASS_MONTSE")
	require.True(t, ok)
	require.Equal(t, "with spaces", v)
}

func TestKeyringSource(t *testing.T) {
	ring := NewKeyringSourceWith(keyring.NewArrayKeyring(nil))

	_, ok := ring.Lookup("IMAP_PASS_MONTSE")
	require.False(t, ok)

	require.NoError(t, ring.Set("IMAP_USER_MONTSE", "montse@studio.example"))
	require.NoError(t, ring.Set("IMAP_PASS_MONTSE", "from-keyring"))

	r := NewResolver(nil, MapSource{}, ring)
	creds := r.Resolve("montse")
	require.True(t, creds.IsSome())
	require.Equal(t, "from-keyring",
		creds.UnwrapOr(model.Credentials{}).Secret)

	require.NoError(t, ring.Delete("IMAP_PASS_MONTSE"))
	require.NoError(t, ring.Delete("IMAP_PASS_MONTSE"))
	require.True(t, r.Resolve("montse").IsNone())
}
