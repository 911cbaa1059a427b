package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefix/backend/internal/config"
	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/infrastructure/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(config.LoggerConfig{
		Level:            "error",
		Encoding:         "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	require.NoError(t, err)
	return log
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	base := t.TempDir()
	fs, err := NewFileStore(config.StorageConfig{
		UploadDir: filepath.Join(base, "uploads"),
		FixedDir:  filepath.Join(base, "fixed"),
	}, testLogger(t))
	require.NoError(t, err)
	return fs
}

func TestFileStoreSaveUploadAndReadBack(t *testing.T) {
	t.Parallel()

	fs := newTestFileStore(t)
	content := "def main():\n    pass\n"

	path, size, err := fs.SaveUpload("task-1", "example.py", strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)
	assert.Equal(t, "task-1_example.py", filepath.Base(path))

	got, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestFileStoreSaveUploadStripsDirectories(t *testing.T) {
	t.Parallel()

	fs := newTestFileStore(t)

	path, _, err := fs.SaveUpload("task-1", "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "task-1_passwd", filepath.Base(path))
	assert.NotContains(t, path, "..")
}

func TestFileStoreReadMissingFile(t *testing.T) {
	t.Parallel()

	fs := newTestFileStore(t)
	_, err := fs.ReadFile(filepath.Join(t.TempDir(), "missing.py"))
	assert.Error(t, err)
}

func TestFileStoreSaveFixed(t *testing.T) {
	t.Parallel()

	fs := newTestFileStore(t)

	path, err := fs.SaveFixed("task-1", "example.py", "print('fixed')\n")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "print('fixed')\n", string(data))
}

func TestSaveRunnerPersistsAndRecordsDiff(t *testing.T) {
	t.Parallel()

	fs := newTestFileStore(t)
	runner := NewSaveRunner(fs, testLogger(t))

	sc := &ports.StageContext{
		TaskID:          "task-1",
		FileName:        "example.py",
		OriginalContent: "a\nb\nc\n",
		FixedContent:    "a\nb\nd\ne\n",
	}

	result, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, sc.SavedFilePath)
	got, err := fs.ReadFile(sc.SavedFilePath)
	require.NoError(t, err)
	assert.Equal(t, sc.FixedContent, got)

	require.NotNil(t, sc.DiffStats)
	assert.Equal(t, 3, sc.DiffStats["lines_before"])
	assert.Equal(t, 4, sc.DiffStats["lines_after"])
	assert.Equal(t, 2, sc.DiffStats["lines_added"])
	assert.Equal(t, 1, sc.DiffStats["lines_removed"])
}

func TestSaveRunnerRejectsEmptyFixedContent(t *testing.T) {
	t.Parallel()

	runner := NewSaveRunner(newTestFileStore(t), testLogger(t))
	_, err := runner.Run(context.Background(), &ports.StageContext{TaskID: "task-1", FileName: "a.py"})
	assert.Error(t, err)
}

func TestDiffStats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                     string
		original, fixed          string
		before, after            int
		added, removed           int
	}{
		{
			name:     "identical",
			original: "a\nb\n",
			fixed:    "a\nb\n",
			before:   2, after: 2, added: 0, removed: 0,
		},
		{
			name:     "pure addition",
			original: "a\n",
			fixed:    "a\nb\n",
			before:   1, after: 2, added: 1, removed: 0,
		},
		{
			name:     "pure removal",
			original: "a\nb\n",
			fixed:    "a\n",
			before:   2, after: 1, added: 0, removed: 1,
		},
		{
			name:     "replacement",
			original: "a\nold\n",
			fixed:    "a\nnew\n",
			before:   2, after: 2, added: 1, removed: 1,
		},
		{
			name:     "empty original",
			original: "",
			fixed:    "a\n",
			before:   0, after: 1, added: 1, removed: 0,
		},
		{
			name:     "duplicate lines counted per occurrence",
			original: "x\nx\n",
			fixed:    "x\n",
			before:   2, after: 1, added: 0, removed: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			stats := DiffStats(tc.original, tc.fixed)
			assert.Equal(t, tc.before, stats["lines_before"])
			assert.Equal(t, tc.after, stats["lines_after"])
			assert.Equal(t, tc.added, stats["lines_added"])
			assert.Equal(t, tc.removed, stats["lines_removed"])
		})
	}
}
