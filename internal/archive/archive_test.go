package archive

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/AnyUserName/imgconv/internal/collection"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	ds := []collection.Download{
		{FileName: "a.jpg", MIME: "image/jpeg", Hash: "1111111111111111", Data: []byte("jpeg bytes")},
		{FileName: "b.bmp", MIME: "image/bmp", Hash: "2222222222222222", Data: bytes.Repeat([]byte{0}, 4096)},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, d := range ds {
		require.NoError(t, w.Add(d))
	}
	assert.Equal(t, 2, w.Len())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "second close is a no-op")

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	for i, f := range zr.File {
		assert.Equal(t, ds[i].FileName, f.Name)
		assert.Equal(t, ds[i].Hash, f.Comment)
		rc, err := f.Open()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		assert.Equal(t, ds[i].Data, got)
	}
	assert.Equal(t, zip.Store, zr.File[0].Method)
	assert.Equal(t, zip.Deflate, zr.File[1].Method)
	assert.Less(t, zr.File[1].CompressedSize64, uint64(4096))
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.zip")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Add(collection.Download{FileName: "one.png", MIME: "image/png", Data: []byte{1}}))
	require.NoError(t, w.Close())

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "one.png", zr.File[0].Name)

	_, err = Create(filepath.Join(t.TempDir(), "missing", "x.zip"))
	assert.Error(t, err)
}

func TestCreate_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.zip")
	w, err := Create(path)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Len())
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size(), "empty archive still has a directory record")
}
