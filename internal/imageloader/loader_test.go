package imageloader

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
	gifBytes  = append([]byte("GIF89a"), make([]byte, 32)...)
)

func newTestLoader(t *testing.T, opts Options) *Loader {
	t.Helper()
	return New(resty.New(), opts, zap.NewNop())
}

func TestLoadLocalPathSniffsContentNotExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.jpg")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o600))

	img, err := newTestLoader(t, Options{}).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MediaType())
	assert.Equal(t, pngBytes, img.Bytes())
}

func TestLoadRemoteURLIgnoresContentTypeHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write(jpegBytes)
	}))
	defer srv.Close()

	img, err := newTestLoader(t, Options{}).Load(context.Background(), srv.URL+"/card.gif")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MediaType())
	assert.Equal(t, jpegBytes, img.Bytes())
}

func TestLoadInlineBase64IgnoresDataURLLabel(t *testing.T) {
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(gifBytes)

	img, err := newTestLoader(t, Options{}).Load(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", img.MediaType())
}

func TestLoadInlineJPEGThatLooksLikeAPath(t *testing.T) {
	ref := base64.StdEncoding.EncodeToString(jpegBytes)
	require.Equal(t, byte('/'), ref[0], "jpeg base64 should start with a slash")

	img, err := newTestLoader(t, Options{}).Load(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MediaType())
	assert.Equal(t, jpegBytes, img.Bytes())
}

func TestLoadInlineToleratesWhitespaceAndMissingPadding(t *testing.T) {
	raw := base64.RawStdEncoding.EncodeToString(pngBytes)
	ref := raw[:10] + "\n" + raw[10:]

	img, err := newTestLoader(t, Options{}).Load(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MediaType())
}

func TestLoadRoundTripsEveryReferenceKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card")
	require.NoError(t, os.WriteFile(path, gifBytes, 0o600))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(gifBytes)
	}))
	defer srv.Close()

	loader := newTestLoader(t, Options{})
	for name, ref := range map[string]string{
		"path":   path,
		"url":    srv.URL,
		"inline": base64.StdEncoding.EncodeToString(gifBytes),
	} {
		t.Run(name, func(t *testing.T) {
			img, err := loader.Load(context.Background(), ref)
			require.NoError(t, err)
			decoded, err := base64.StdEncoding.DecodeString(img.Base64())
			require.NoError(t, err)
			assert.Equal(t, gifBytes, decoded)
			assert.Equal(t, "image/gif", img.MediaType())
			assert.Equal(t, "data:image/gif;base64,"+img.Base64(), img.DataURL())
		})
	}
}

func TestLoadFailures(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()
	textFile := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(textFile, []byte("hello, this is plain text"), 0o600))

	cases := map[string]string{
		"missing path":      "/definitely/missing/card.jpg",
		"directory":         t.TempDir(),
		"non image file":    textFile,
		"url not found":     notFound.URL + "/card.png",
		"url unreachable":   closedURL + "/card.png",
		"invalid base64":    "not base64 at all!",
		"empty reference":   "   ",
		"malformed dataurl": "data:image/png;base64",
	}
	loader := newTestLoader(t, Options{FetchTimeout: 2 * time.Second})
	for name, ref := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loader.Load(context.Background(), ref)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrImageUnavailable)
		})
	}
}

func TestLoadRejectsOversizedPayloads(t *testing.T) {
	big := append(append([]byte{}, pngBytes...), make([]byte, 256)...)
	path := filepath.Join(t.TempDir(), "big.png")
	require.NoError(t, os.WriteFile(path, big, 0o600))

	loader := newTestLoader(t, Options{MaxBytes: 64})
	for _, ref := range []string{path, base64.StdEncoding.EncodeToString(big)} {
		_, err := loader.Load(context.Background(), ref)
		assert.ErrorIs(t, err, ErrImageTooLarge)
		assert.ErrorIs(t, err, ErrImageUnavailable)
	}
}

func TestFromBytes(t *testing.T) {
	img, err := FromBytes(jpegBytes, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MediaType())

	_, err = FromBytes(nil, 0)
	assert.ErrorIs(t, err, ErrImageUnavailable)

	_, err = FromBytes([]byte("%PDF-1.7\n"), 0)
	assert.ErrorIs(t, err, ErrImageUnavailable)
}
