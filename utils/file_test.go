package utils

import (
	"bytes"
	"context"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("photo", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["photo"][0]
}

func TestLocalStorageUpload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	storage, err := NewLocalStorage(dir, "/uploads/")
	require.NoError(t, err)

	key := PhotoKey("trip-1", "beach.JPG")
	url, err := storage.Upload(context.Background(), fileHeader(t, "beach.JPG", []byte("jpeg bytes")), key)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/"+key, url)

	got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(got))
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir(), "/uploads")
	require.NoError(t, err)

	_, err = storage.Upload(context.Background(), fileHeader(t, "x.jpg", []byte("x")), "../outside.jpg")
	assert.Error(t, err)
}
