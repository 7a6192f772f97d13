package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingScope/internal/model"
)

func readLines(t *testing.T, path string) []model.LogRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []model.LogRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec model.LogRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestJsonlStorageAppendsBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs.jsonl")
	s := NewJsonlStorage(path)

	require.NoError(t, s.PutLogBatch([]model.LogRecord{{BlockNumber: 1, LogIndex: 0}, {BlockNumber: 1, LogIndex: 4}}))
	require.NoError(t, s.PutLogBatch(nil))
	require.NoError(t, s.PutLogBatch([]model.LogRecord{{BlockNumber: 2, LogIndex: 1}}))

	got := readLines(t, path)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(4), got[1].LogIndex)
	assert.Equal(t, uint64(2), got[2].BlockNumber)
}

func TestJSONLWriterTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typed.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	w, err := NewJSONLWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(model.LogRecord{BlockNumber: 9}))
	require.NoError(t, w.Close())

	got := readLines(t, path)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(9), got[0].BlockNumber)
}
