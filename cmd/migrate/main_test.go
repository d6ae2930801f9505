package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls   []string
	err     error
	version uint
	dirty   bool
	closed  bool
}

func (f *fakeMigrator) Up() error { f.calls = append(f.calls, "up"); return f.err }

func (f *fakeMigrator) Down() error { f.calls = append(f.calls, "down"); return f.err }

func (f *fakeMigrator) Steps(_ int) error {
	f.calls = append(f.calls, "steps")
	return f.err
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, f.err }

func (f *fakeMigrator) Close() (error, error) {
	f.closed = true
	return nil, nil
}

func execute(t *testing.T, fake *fakeMigrator, args ...string) (string, error) {
	t.Helper()
	var gotPath, gotDSN string
	opts := &options{open: func(path, dsn string) (migrator, error) {
		gotPath, gotDSN = path, dsn
		return fake, nil
	}}
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--dsn", "postgres://lanes@localhost/lanes"))
	err := cmd.Execute()
	if err == nil && len(fake.calls) > 0 {
		assert.Equal(t, defaultMigrationsPath, gotPath)
		assert.Equal(t, "postgres://lanes@localhost/lanes", gotDSN)
	}
	return out.String(), err
}

func TestMigrateCommands(t *testing.T) {
	testCases := []struct {
		name      string
		args      []string
		err       error
		wantCall  string
		wantOut   string
		wantError bool
	}{
		{name: "up applies", args: []string{"up"}, wantCall: "up", wantOut: "Migration up completed"},
		{name: "up with nothing to do", args: []string{"up"}, err: migrate.ErrNoChange, wantCall: "up", wantOut: "No migrations to apply"},
		{name: "down rolls back one step", args: []string{"down"}, wantCall: "steps", wantOut: "Migration down completed"},
		{name: "reset rolls back all", args: []string{"reset"}, wantCall: "down", wantOut: "Migration reset completed"},
		{name: "failure is reported", args: []string{"up"}, err: errors.New("boom"), wantCall: "up", wantError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeMigrator{err: tc.err}
			out, err := execute(t, fake, tc.args...)
			if tc.wantError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Contains(t, out, tc.wantOut)
			}
			assert.Equal(t, []string{tc.wantCall}, fake.calls)
			assert.True(t, fake.closed)
		})
	}
}

func TestMigrateVersion(t *testing.T) {
	out, err := execute(t, &fakeMigrator{version: 1})
	require.NoError(t, err)
	assert.Contains(t, out, "migrate")

	out, err = execute(t, &fakeMigrator{version: 1}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version=1 dirty=false")

	out, err = execute(t, &fakeMigrator{err: migrate.ErrNilVersion}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "No migrations applied")
}
