package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/mediadupes/internal/dupes"
)

type cliTestEnv struct {
	configPath string
	media      string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	media := filepath.Join(base, "media")
	require.NoError(t, os.MkdirAll(media, 0o755))

	configPath := filepath.Join(base, "mediadupes.yaml")
	content := "scan:\n  paths: [" + media + "]\n" +
		"db:\n  path: " + filepath.Join(base, "data", "mediadupes.db") + "\n" +
		"log:\n  level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	old := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	newer := old.Add(time.Hour)
	writeMedia(t, filepath.Join(media, "beach.jpg"), "sand and sea", old)
	writeMedia(t, filepath.Join(media, "beach copy.jpg"), "sand and sea", newer)
	writeMedia(t, filepath.Join(media, "forest.jpg"), "trees", old)

	return &cliTestEnv{configPath: configPath, media: media}
}

func writeMedia(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func (e *cliTestEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "mediadupes dev-unknown"))
}

func TestScanCommand_JSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "", "scan", "--format", "json")
	require.NoError(t, err)

	var report scanReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "completed", string(report.Status))
	assert.Equal(t, dupes.Stats{TotalGroups: 1, TotalFiles: 1, WastedSpace: int64(len("sand and sea"))}, report.Stats)
	require.Len(t, report.Groups, 1)
	assert.Len(t, report.Groups[0].Files, 2)
	assert.Empty(t, report.Selected)
	assert.Nil(t, report.Deletion)
}

func TestScanCommand_TableWithStrategy(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "", "scan", "--strategy", "oldest")
	require.NoError(t, err)

	assert.Contains(t, out, "beach copy.jpg")
	assert.Contains(t, out, "delete")
	assert.Contains(t, out, "keep")
	assert.Contains(t, out, "1 groups, 1 redundant files")
	assert.FileExists(t, filepath.Join(env.media, "beach copy.jpg"))
}

func TestScanCommand_DeleteConfirmed(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "y\n", "scan", "--strategy", "newest", "--delete", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted: 1")

	assert.NoFileExists(t, filepath.Join(env.media, "beach.jpg"))
	assert.FileExists(t, filepath.Join(env.media, "beach copy.jpg"))
	assert.FileExists(t, filepath.Join(env.media, "forest.jpg"))
}

func TestScanCommand_DeleteDeclined(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "n\n", "scan", "--strategy", "newest", "--delete")
	assert.ErrorIs(t, err, errAborted)
	assert.FileExists(t, filepath.Join(env.media, "beach.jpg"))
	assert.FileExists(t, filepath.Join(env.media, "beach copy.jpg"))
}

func TestScanCommand_DeleteWithYes(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "", "scan", "--strategy", "shortest_path", "--delete", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 files")
	assert.FileExists(t, filepath.Join(env.media, "beach.jpg"))
	assert.NoFileExists(t, filepath.Join(env.media, "beach copy.jpg"))
}

func TestScanCommand_FlagErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "", "scan", "--delete")
	assert.EqualError(t, err, "--delete requires --strategy")

	_, err = env.run(t, "", "scan", "--strategy", "biggest")
	assert.ErrorIs(t, err, dupes.ErrUnknownStrategy)

	_, err = env.run(t, "", "scan", "--format", "xml")
	assert.Error(t, err)

	_, err = env.run(t, "", "scan", "--backend", "rsync")
	assert.Error(t, err)
}

func TestScanCommand_PathArgument(t *testing.T) {
	env := setupCLITestEnv(t)
	other := t.TempDir()
	writeMedia(t, filepath.Join(other, "only.jpg"), "unique", time.Now())

	out, err := env.run(t, "", "scan", other)
	require.NoError(t, err)
	assert.Contains(t, out, "No duplicates found")
}

func TestHistoryCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No scans recorded")

	_, err = env.run(t, "", "scan", "--strategy", "newest", "--delete", "--yes", "--format", "json")
	require.NoError(t, err)

	out, err = env.run(t, "", "history", "--format", "json")
	require.NoError(t, err)
	var runs []historyRun
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "cli", runs[0].Trigger)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, int64(1), runs[0].Groups)

	out, err = env.run(t, "", "history", "--actions")
	require.NoError(t, err)
	assert.Contains(t, out, "newest")
	assert.Contains(t, out, "completed")

	_, err = env.run(t, "", "history", "--limit", "0")
	assert.Error(t, err)
}

func TestConfirmDelete(t *testing.T) {
	snap := dupes.Snapshot{
		Groups: []dupes.DuplicateGroup{{
			Hash: "h", Size: 2048, Count: 2,
			Files: []dupes.FileRef{{ID: "a", Size: 2048}, {ID: "b", Size: 2048}},
		}},
		Selected: []string{"b"},
	}

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var prompt bytes.Buffer
		ok, err := confirmDelete(strings.NewReader(tt.input), &prompt, snap)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "input %q", tt.input)
		assert.Equal(t, "Delete 1 files (2.0 kB)? [y/N] ", prompt.String())
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]outputFormat{"": formatTable, "JSON": formatJSON, " yaml ": formatYAML, "table": formatTable} {
		got, err := parseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := parseFormat("csv")
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", formatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h 10m", formatDuration(2*time.Hour+10*time.Minute))
}
