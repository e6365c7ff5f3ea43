package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

// FileStore stores uploaded files on the configured storage. A file reference is the
// object name inside that storage.
type FileStore struct {
	resolver   StorageConnectionResolver
	storageRef string
}

func NewFileStore(resolver StorageConnectionResolver, storageRef string) *FileStore {
	return &FileStore{resolver: resolver, storageRef: storageRef}
}

// ObjectName returns the object name of an upload: "{jobID}_{filename}".
func ObjectName(jobID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return fmt.Sprintf("%s_%s", jobID, base)
}

func (s *FileStore) connection(ctx context.Context) (StorageConnection, error) {
	conn, err := s.resolver.ResolveStorageConnection(ctx, s.storageRef)
	if err != nil {
		return nil, exception.NewTransientError("FileStore", fmt.Sprintf("failed to resolve storage '%s'", s.storageRef), err)
	}
	return conn, nil
}

// Save uploads data and returns its file reference.
func (s *FileStore) Save(ctx context.Context, objectName string, data io.Reader) (string, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return "", err
	}
	if err := conn.Upload(ctx, objectName, data, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"); err != nil {
		return "", exception.NewTransientError("FileStore.Save", fmt.Sprintf("failed to store '%s'", objectName), err)
	}
	return objectName, nil
}

// Open opens a stored file by reference.
func (s *FileStore) Open(ctx context.Context, fileRef string) (io.ReadCloser, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := conn.Download(ctx, fileRef)
	if err != nil {
		return nil, exception.NewTransientError("FileStore.Open", fmt.Sprintf("failed to open '%s'", fileRef), err)
	}
	return rc, nil
}

// Delete removes a stored file.
func (s *FileStore) Delete(ctx context.Context, fileRef string) error {
	conn, err := s.connection(ctx)
	if err != nil {
		return err
	}
	return conn.DeleteObject(ctx, fileRef)
}
