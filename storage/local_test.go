package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNewLocalStorage(t *testing.T) {
	tests := []struct {
		name    string
		baseDir string
		wantErr bool
	}{
		{name: "existing directory", baseDir: t.TempDir()},
		{name: "creates missing directory", baseDir: filepath.Join(t.TempDir(), "artifacts")},
		{name: "empty", baseDir: "", wantErr: true},
		{name: "dot", baseDir: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewLocalStorage(tt.baseDir)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			info, err := os.Stat(s.baseDir)
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		})
	}
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	key := "reports/run-1/report.json"

	require.NoError(t, s.Upload(ctx, key, strings.NewReader(`{"status":"completed"}`)))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := ReadAll(ctx, s, key)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"completed"}`, string(data))

	require.NoError(t, s.Upload(ctx, key, strings.NewReader(`{"status":"failed"}`)))
	data, err = ReadAll(ctx, s, key)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"failed"}`, string(data))

	entries, err := os.ReadDir(filepath.Join(s.baseDir, "reports", "run-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary upload files must not be left behind")

	url, err := s.GetURL(ctx, key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))
	assert.True(t, strings.HasSuffix(url, "/reports/run-1/report.json"))

	require.NoError(t, s.Delete(ctx, key))
	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorage_Missing(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()

	_, err := s.Download(ctx, "reports/none/report.json")
	assert.ErrorIs(t, err, ErrFileNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "reports/none/report.json"), ErrFileNotFound)

	_, err = s.GetURL(ctx, "reports/none/report.json")
	assert.ErrorIs(t, err, ErrFileNotFound)

	ok, err := s.Exists(ctx, "reports/none/report.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorage_LargeUpload(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	shot := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 1<<18)

	require.NoError(t, s.Upload(ctx, "reports/run-2/final.png", bytes.NewReader(shot)))

	data, err := ReadAll(ctx, s, "reports/run-2/final.png")
	require.NoError(t, err)
	assert.Equal(t, shot, data)
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) { return 0, errors.New("disk on fire") }

func TestLocalStorage_UploadFailureLeavesNothing(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()

	err := s.Upload(ctx, "reports/run-3/report.json", failingReader{})
	require.Error(t, err)

	ok, err := s.Exists(ctx, "reports/run-3/report.json")
	require.NoError(t, err)
	assert.False(t, ok)
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "reports", "run-3"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStorage_UploadCancelled(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Upload(ctx, "reports/run-4/report.json", strings.NewReader("{}"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStorage_PathTraversal(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()

	for _, p := range []string{"../outside.json", "reports/../../outside.json", "/etc/passwd"} {
		t.Run(p, func(t *testing.T) {
			assert.ErrorIs(t, s.Upload(ctx, p, strings.NewReader("x")), ErrInvalidPath)
			_, err := s.Download(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidPath)
			_, err = s.Exists(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}
