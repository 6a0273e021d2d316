package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/spoofguard/internal/store"
)

func TestRunReleasesDatabaseWhenStageFails(t *testing.T) {
	chdirForTest(t, t.TempDir())
	t.Setenv("SPOOFGUARD_DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "")
	_, protoPath := fixture(t)

	prevDB, prevCfg := DB, Cfg
	t.Cleanup(func() { DB, Cfg = prevDB, prevCfg })

	// No URL is configured, so the pre-run hook leaves this handle in place.
	DB = &store.Store{}
	rootCmd.SetArgs([]string{
		"mkhistmodel",
		"--log-level", "ERROR",
		"--protocol", protoPath,
		"-v", filepath.Join(t.TempDir(), "missing"),
		"-d", t.TempDir(),
		"--no-progress",
	})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := run(context.Background())
	require.Error(t, err)
	assert.Nil(t, DB)
}

func TestReleaseDBWithoutDatabase(t *testing.T) {
	prev := DB
	DB = nil
	t.Cleanup(func() { DB = prev })

	assert.NotPanics(t, releaseDB)
	assert.Nil(t, DB)
}

// chdirForTest changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which requires Go 1.24).
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
