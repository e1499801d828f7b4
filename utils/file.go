package utils

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps uploads on disk. It stands in for R2 in development.
type LocalStorage struct {
	dir       string
	urlPrefix string
}

// NewLocalStorage creates dir if needed. Files are served back under urlPrefix.
func NewLocalStorage(dir, urlPrefix string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStorage{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

func (s *LocalStorage) Upload(_ context.Context, fileHeader *multipart.FileHeader, key string) (string, error) {
	destPath := filepath.Join(s.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(destPath, filepath.Clean(s.dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid upload key %q", key)
	}
	if err := SaveFile(fileHeader, destPath); err != nil {
		return "", fmt.Errorf("save %s: %w", key, err)
	}
	return s.urlPrefix + "/" + key, nil
}

// SaveFile copies the uploaded file to destPath, creating parent directories.
func SaveFile(fileHeader *multipart.FileHeader, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, file)
	return err
}
