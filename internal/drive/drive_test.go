package drive

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishMultipartRequest(t *testing.T) {
	var gotAuth string
	var metaJSON, fileBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/related", mediaType)

		mr := multipart.NewReader(r.Body, params["boundary"])
		meta, err := mr.NextPart()
		require.NoError(t, err)
		raw, _ := io.ReadAll(meta)
		metaJSON = string(raw)

		file, err := mr.NextPart()
		require.NoError(t, err)
		raw, _ = io.ReadAll(file)
		fileBody = string(raw)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"drive-file-1"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{AccessToken: "tok-1", UploadURL: srv.URL})
	id, err := c.Publish(context.Background(), "folder-9", "Maths SEM2.pdf", []byte("pdfbytes"))
	require.NoError(t, err)

	assert.Equal(t, "drive-file-1", id)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Contains(t, metaJSON, `"name":"Maths SEM2.pdf"`)
	assert.Contains(t, metaJSON, `"parents":["folder-9"]`)
	assert.Equal(t, "pdfbytes", fileBody)
}

func TestPublishErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{AccessToken: "stale", UploadURL: srv.URL})
	_, err := c.Publish(context.Background(), "folder-9", "x.pdf", []byte("data"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "status 401"))
}
