package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File-backed store for development and tests, with the serialization and
// writing concerns split so either can be substituted.

type Serializer interface {
	Marshal(data any) ([]byte, error)
}

type Writer interface {
	Write(filename string, data []byte) error
}

type JSONSerializer struct {
	Prefix, Indent string
}

func (s JSONSerializer) Marshal(data any) ([]byte, error) {
	return json.MarshalIndent(data, s.Prefix, s.Indent)
}

type FileWriter struct {
	Overwrite bool
}

func (w FileWriter) Write(filename string, data []byte) error {
	if filename == "" {
		return os.ErrInvalid
	}
	if _, err := os.Stat(filename); !os.IsNotExist(err) && !w.Overwrite {
		return os.ErrExist
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

var _ Store = (*FileStore)(nil)

// FileStore writes one JSON file per entry under Dir, named by node,
// source and creation time.
type FileStore struct {
	Dir        string
	Serializer Serializer
	Writer     Writer
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{
		Dir:        dir,
		Serializer: JSONSerializer{Indent: "    "},
		Writer:     FileWriter{Overwrite: true},
	}
}

func (s *FileStore) Create(_ context.Context, e Entry) error {
	bytes, err := s.Serializer.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog entry: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%d.json", e.NodeID, e.Source, time.Now().UnixNano())
	if err := s.Writer.Write(filepath.Join(s.Dir, name), bytes); err != nil {
		return fmt.Errorf("failed to write catalog entry: %w", err)
	}
	return nil
}
