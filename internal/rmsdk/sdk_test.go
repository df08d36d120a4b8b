package rmsdk

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AddressForms(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
	}{
		{"bare host", "10.11.99.1", "http://10.11.99.1"},
		{"host and port", "127.0.0.1:8080", "http://127.0.0.1:8080"},
		{"explicit scheme", "http://10.11.99.1/", "http://10.11.99.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.address)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.BaseURL())
		})
	}

	t.Run("empty address rejected", func(t *testing.T) {
		_, err := New("")
		assert.ErrorIs(t, err, ErrNoAddress)
	})
}

func TestDocuments(t *testing.T) {
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"ID":"f1","Parent":"","VissibleName":"Books","Type":"CollectionType"},
			{"ID":"d1","Parent":"","VissibleName":"Dune","Type":"DocumentType","fileType":"pdf"}
		]`))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	entries, err := c.Documents(context.Background(), RootID)
	require.NoError(t, err)
	assert.Equal(t, "/documents/", gotPath)
	assert.Contains(t, gotUA, "remsync/")
	require.Len(t, entries, 2)

	assert.Equal(t, "f1", entries[0].ID)
	assert.Equal(t, "Books", entries[0].Name())
	assert.True(t, entries[0].IsFolder())
	assert.False(t, entries[0].IsDocument())

	assert.Equal(t, "d1", entries[1].ID)
	assert.True(t, entries[1].IsDocument())
	assert.Equal(t, "pdf", entries[1].FileType)

	_, err = c.Documents(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "/documents/f1", gotPath)
}

func TestDocuments_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Documents(context.Background(), RootID)
	require.Error(t, err)

	status, ok := HTTPStatus(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.False(t, IsUnreachable(err))
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close() // nothing listens there anymore

	c, err := New(addr)
	require.NoError(t, err)

	err = c.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))

	_, ok := HTTPStatus(err)
	assert.False(t, ok)
}

func TestProbe_TimeoutCountsAsUnreachable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	c, err := New(srv.URL, WithProbeTimeout(50*time.Millisecond))
	require.NoError(t, err)

	err = c.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
}

func TestNavigate(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	require.NoError(t, c.Navigate(context.Background(), "folder-42"))
	assert.Equal(t, "/documents/folder-42", gotPath)

	require.NoError(t, c.Navigate(context.Background(), RootID))
	assert.Equal(t, "/documents/", gotPath)
}

func TestUpload(t *testing.T) {
	var (
		gotField, gotFileName, gotContentType string
		gotBody                               []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/upload", r.URL.Path)

		mr, err := r.MultipartReader()
		require.NoError(t, err)
		part, err := mr.NextPart()
		require.NoError(t, err)

		gotField = part.FormName()
		gotFileName = part.FileName()
		gotContentType = part.Header.Get("Content-Type")
		gotBody, err = io.ReadAll(part)
		require.NoError(t, err)

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "dune.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644))

	c, err := New(srv.URL)
	require.NoError(t, err)

	err = c.Upload(context.Background(), &UploadParams{FilePath: path})
	require.NoError(t, err)

	assert.Equal(t, "file", gotField)
	assert.Equal(t, "dune.pdf", gotFileName)
	assert.Equal(t, "application/pdf", gotContentType)
	assert.Equal(t, []byte("%PDF-1.4 stub"), gotBody)
}

func TestUpload_CustomNameAndErrors(t *testing.T) {
	t.Run("upload name overrides base name", func(t *testing.T) {
		var gotFileName string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mr, err := r.MultipartReader()
			require.NoError(t, err)
			part, err := mr.NextPart()
			require.NoError(t, err)
			gotFileName = part.FileName()
			io.Copy(io.Discard, part)
		}))
		defer srv.Close()

		path := filepath.Join(t.TempDir(), "tmp-4821.epub")
		require.NoError(t, os.WriteFile(path, []byte("zip"), 0o644))

		c, err := New(srv.URL)
		require.NoError(t, err)

		err = c.Upload(context.Background(), &UploadParams{FilePath: path, UploadName: "Dune.epub"})
		require.NoError(t, err)
		assert.Equal(t, "Dune.epub", gotFileName)
	})

	t.Run("missing local file", func(t *testing.T) {
		c, err := New("10.11.99.1")
		require.NoError(t, err)

		err = c.Upload(context.Background(), &UploadParams{FilePath: filepath.Join(t.TempDir(), "nope.pdf")})
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("device rejects upload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			http.Error(w, "storage full", http.StatusInsufficientStorage)
		}))
		defer srv.Close()

		path := filepath.Join(t.TempDir(), "big.pdf")
		require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))

		c, err := New(srv.URL)
		require.NoError(t, err)

		err = c.Upload(context.Background(), &UploadParams{FilePath: path})
		require.Error(t, err)
		status, ok := HTTPStatus(err)
		assert.True(t, ok)
		assert.Equal(t, http.StatusInsufficientStorage, status)
	})
}
