// test module for the file-backed catalog store

package catalog_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/NTC/internal/catalog"
)

type MockSerializer struct {
	Bytes []byte
	Err   error
}

func (s MockSerializer) Marshal(data any) ([]byte, error) {
	return s.Bytes, s.Err
}

type MockWriter struct {
	Data map[string][]byte
	Err  error
}

func (w *MockWriter) Write(filename string, data []byte) error {
	if w.Data == nil {
		w.Data = make(map[string][]byte)
	}
	w.Data[filename] = data
	return w.Err
}

func TestFileStoreCreate(t *testing.T) {
	entry := catalog.Entry{NodeID: "node-5", Source: "pci", Data: "payload"}

	tests := []struct {
		name        string
		serializer  catalog.Serializer
		writer      catalog.Writer
		expectedErr bool
	}{
		{
			name:       "valid entry",
			serializer: MockSerializer{Bytes: []byte(`{"node":"node-5"}`)},
			writer:     &MockWriter{},
		},
		{
			name:        "serializer error",
			serializer:  MockSerializer{Err: fmt.Errorf("serialization failed")},
			writer:      &MockWriter{},
			expectedErr: true,
		},
		{
			name:        "writer error",
			serializer:  MockSerializer{Bytes: []byte(`{}`)},
			writer:      &MockWriter{Err: fmt.Errorf("write failed")},
			expectedErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &catalog.FileStore{
				Dir:        t.TempDir(),
				Serializer: tt.serializer,
				Writer:     tt.writer,
			}
			err := store.Create(context.Background(), entry)
			if tt.expectedErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				writer := tt.writer.(*MockWriter)
				assert.Len(t, writer.Data, 1)
			}
		})
	}
}

func TestFileStoreWritesJSON(t *testing.T) {
	dir := t.TempDir()
	store := catalog.NewFileStore(dir)

	entry := catalog.Entry{NodeID: "node-5", Source: "unknown", Data: "x"}
	require.NoError(t, store.Create(context.Background(), entry))

	matches, err := filepath.Glob(filepath.Join(dir, "node-5_unknown_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	raw, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	var got catalog.Entry
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, entry.NodeID, got.NodeID)
	assert.Equal(t, entry.Source, got.Source)
	assert.Equal(t, "x", got.Data)
}

func TestFileWriterRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "entry.json")

	w := catalog.FileWriter{Overwrite: false}
	require.NoError(t, w.Write(name, []byte("first")))
	assert.ErrorIs(t, w.Write(name, []byte("second")), os.ErrExist)

	w = catalog.FileWriter{Overwrite: true}
	assert.NoError(t, w.Write(name, []byte("second")))

	assert.ErrorIs(t, w.Write("", nil), os.ErrInvalid)
}
