package acquire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakePDF = "%PDF-1.7\nfake pdf body\n%%EOF"

func testDownloader(maxSize int64) *Downloader {
	return NewDownloader(DownloaderConfig{
		MaxSize:              maxSize,
		AllowPrivateNetworks: true, // httptest servers bind to 127.0.0.1
	})
}

func TestDownload(t *testing.T) {
	t.Run("accepts valid pdf regardless of content type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Publishers frequently serve PDFs as octet-stream.
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte(fakePDF))
		}))
		defer server.Close()

		result, err := testDownloader(0).Download(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, int64(len(fakePDF)), result.SizeBytes)
		assert.Len(t, result.ContentHash, 64)
		assert.Equal(t, "application/octet-stream", result.ContentType)
	})

	t.Run("rejects html served with pdf content type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("<html><body>Please sign in</body></html>"))
		}))
		defer server.Close()

		_, err := testDownloader(0).Download(context.Background(), server.URL)
		assert.ErrorIs(t, err, ErrNotPDF)
	})

	t.Run("rejects oversized files", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("%PDF-1.7\n" + strings.Repeat("x", 2048)))
		}))
		defer server.Close()

		_, err := testDownloader(1024).Download(context.Background(), server.URL)
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("reports http errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		_, err := testDownloader(0).Download(context.Background(), server.URL)
		require.ErrorIs(t, err, ErrDownloadFailed)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("rejects non-http schemes", func(t *testing.T) {
		d := NewDownloader(DownloaderConfig{})
		_, err := d.Download(context.Background(), "file:///etc/passwd")
		assert.ErrorIs(t, err, ErrSSRF)
	})

	t.Run("rejects private network targets", func(t *testing.T) {
		d := NewDownloader(DownloaderConfig{})
		_, err := d.Download(context.Background(), "http://127.0.0.1:9999/x.pdf")
		assert.ErrorIs(t, err, ErrSSRF)
	})
}

func TestFetchPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>landing</body></html>"))
	}))
	defer server.Close()

	body, err := testDownloader(0).FetchPage(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, string(body), "landing")
}
