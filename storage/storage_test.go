package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"contractdesk-backend/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStoragePath(t *testing.T) {
	id := uuid.MustParse("3f2a1c7e-0000-4000-8000-000000000001")

	assert.Equal(t, "3f/"+id.String()+"_Master_Services.docx", generateStoragePath(id, "Master Services.docx"))
	assert.Equal(t, "3f/"+id.String()+"_passwd", generateStoragePath(id, "../../etc/passwd"))
	assert.Equal(t, "3f/"+id.String()+"_nda.pdf", generateStoragePath(id, `C:\Users\me\nda.pdf`))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "text/plain", contentTypeFor("a.txt", "text/plain"))
	assert.Equal(t, "application/pdf", contentTypeFor("a.PDF", ""))
	assert.Equal(t, "application/octet-stream", contentTypeFor("a.bin", ""))
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	id := uuid.New()
	body := "This Agreement is made between the parties."
	path, err := s.Upload(ctx, id, "agreement.txt", "text/plain", strings.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	assert.Contains(t, path, id.String())

	rc, err := s.Download(ctx, path)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, body, string(got))

	require.NoError(t, s.Delete(ctx, path))
	_, err = s.Download(ctx, path)
	assert.ErrorIs(t, err, ErrFileNotFound)

	// deleting twice is fine
	assert.NoError(t, s.Delete(ctx, path))
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Download(context.Background(), "../outside.txt")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrFileNotFound)
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()

	s, err := NewStorage(ctx, config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = NewStorage(ctx, config.StorageConfig{Type: "s3"})
	assert.Error(t, err)

	_, err = NewStorage(ctx, config.StorageConfig{Type: "minio"})
	assert.Error(t, err)

	_, err = NewStorage(ctx, config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)

	// Upload accepts unknown sizes
	_, err = s.Upload(ctx, uuid.New(), "x.txt", "", bytes.NewReader([]byte("x")), -1)
	assert.NoError(t, err)
}
