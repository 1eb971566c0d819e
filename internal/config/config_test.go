package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		// Empty path
		{"empty", "", ""},

		// Absolute paths (unchanged except for cleaning)
		{"absolute path", "/usr/local/bin", "/usr/local/bin"},
		{"absolute with trailing slash", "/usr/local/bin/", "/usr/local/bin"},

		// Home expansion
		{"tilde only", "~", home},
		{"tilde with path", "~/documents", filepath.Join(home, "documents")},
		{"tilde nested", "~/a/b/c", filepath.Join(home, "a/b/c")},

		// Relative paths (cleaned but not made absolute)
		{"relative", "foo/bar", "foo/bar"},
		{"relative with dots", "foo/../bar", "bar"},
		{"relative with double dots", "./foo/./bar", "foo/bar"},

		// Path cleaning
		{"redundant slashes", "/usr//local///bin", "/usr/local/bin"},
		{"dot segments", "/usr/./local/../bin", "/usr/bin"},

		// Edge cases
		{"tilde in middle (not expanded)", "/home/~user", "/home/~user"},
		{"tilde not at start (not expanded)", "foo/~/bar", "foo/~/bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.input))
		})
	}
}

func TestIsPathAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedPaths []string
		checkPath    string
		want         bool
	}{
		// Empty allowed paths = unrestricted
		{"empty allowed - any path allowed", nil, "/anything/goes", true},
		{"empty slice - any path allowed", []string{}, "/anything/goes", true},

		// Exact matches
		{"exact match", []string{"/home/user"}, "/home/user", true},
		{"exact match root", []string{"/"}, "/", true},

		// Subdirectory matches
		{"subdirectory allowed", []string{"/home/user"}, "/home/user/documents", true},
		{"deep subdirectory", []string{"/home/user"}, "/home/user/a/b/c/d", true},

		// Non-matches
		{"parent not allowed", []string{"/home/user/documents"}, "/home/user", false},
		{"sibling not allowed", []string{"/home/user"}, "/home/other", false},
		{"unrelated path", []string{"/home/user"}, "/etc/passwd", false},

		// Multiple allowed paths
		{"first of multiple", []string{"/home/user", "/tmp"}, "/home/user/file", true},
		{"second of multiple", []string{"/home/user", "/tmp"}, "/tmp/file", true},
		{"none of multiple", []string{"/home/user", "/tmp"}, "/etc/passwd", false},

		// Path traversal attempts
		{"traversal attempt", []string{"/home/user"}, "/home/user/../etc/passwd", false},
		{"traversal normalized", []string{"/home/user"}, "/home/user/./documents/../files", true},

		// Trailing slashes
		{"allowed has trailing slash", []string{"/home/user/"}, "/home/user/file", true},
		{"check has trailing slash", []string{"/home/user"}, "/home/user/", true},

		// Prefix attack - /home/user shouldn't allow /home/username
		{"prefix attack prevented", []string{"/home/user"}, "/home/username", false},
		{"prefix attack with file", []string{"/home/user"}, "/home/userfile.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Scan: ScanConfig{Paths: tt.allowedPaths}}
			assert.Equal(t, tt.want, cfg.IsPathAllowed(tt.checkPath))
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendNative, cfg.Scan.Backend)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultRetentionDays, cfg.RetentionDays)
	assert.Equal(t, DefaultScanTimeout, cfg.Scan.Timeout)
	assert.NotEmpty(t, cfg.Scan.Extensions)
	assert.Empty(t, cfg.Scan.Paths)

	minSize, err := cfg.MinSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1), minSize)

	prefix, err := cfg.PrefixSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(64*1024), prefix)

	assert.ErrorIs(t, cfg.RequireScanPaths(), ErrNoScanPaths)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "media")
	path := filepath.Join(dir, "mediadupes.yaml")
	content := `
scan:
  paths:
    - ` + media + `
    - ` + media + `/
  min_size: 10 KB
  max_size: 2 GiB
  backend: FCLONES
  timeout: 30m
  extensions: [jpg, png]
server:
  port: 9090
schedule:
  cron: "0 3 * * *"
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{media}, cfg.Scan.Paths)
	assert.Equal(t, BackendFclones, cfg.Scan.Backend)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Scan.Timeout)
	assert.Equal(t, []string{"jpg", "png"}, cfg.Scan.Extensions)
	assert.Equal(t, "0 3 * * *", cfg.Schedule.Cron)

	minSize, err := cfg.MinSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(10000), minSize)
	maxSize, err := cfg.MaxSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(2<<30), maxSize)
}

func TestLoad_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MEDIADUPES_SERVER_PORT", "7000")
	t.Setenv("MEDIADUPES_SCAN_PATHS", "/srv/photos,/srv/video")
	t.Setenv("MEDIADUPES_RETENTION_DAYS", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.RetentionDays)
	assert.Equal(t, []string{"/srv/photos", "/srv/video"}, cfg.Scan.Paths)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func validConfig() Config {
	cfg := *Default()
	cfg.Scan.Paths = []string{"/media"}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"unknown backend", func(c *Config) { c.Scan.Backend = "rsync" }, ErrInvalidBackend},
		{"negative workers", func(c *Config) { c.Scan.Workers = -1 }, ErrInvalidWorkers},
		{"bad min size", func(c *Config) { c.Scan.MinSize = "lots" }, ErrInvalidSize},
		{"max below min", func(c *Config) { c.Scan.MinSize = "2 MB"; c.Scan.MaxSize = "1 MB" }, ErrInvalidSizes},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, ErrInvalidPort},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, ErrInvalidPort},
		{"bad cron", func(c *Config) { c.Schedule.Cron = "every tuesday" }, ErrInvalidCron},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, ErrInvalidLogLevel},
		{"negative retention", func(c *Config) { c.RetentionDays = -1 }, ErrInvalidRetain},
		{"trash inside scan path", func(c *Config) { c.Delete.TrashDir = "/media/.trash" }, ErrTrashInScanPath},
		{"trash outside scan path", func(c *Config) { c.Delete.TrashDir = "/var/trash" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, "0.0.0.0:8080", ServerConfig{Host: "0.0.0.0", Port: 8080}.Addr())
}

func TestNormalizePaths(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	got := NormalizePaths([]string{" /srv/photos/ ", "", "/srv/photos", "rel"})
	assert.Equal(t, []string{"/srv/photos", filepath.Join(wd, "rel")}, got)
	assert.Empty(t, NormalizePaths(nil))
}
