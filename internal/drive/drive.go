// Package drive publishes approved files into Google Drive course folders
// using the multipart upload endpoint.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/pyqhub/pyqbot/core/logger"
)

const defaultUploadURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart"

// Publisher stores a named blob under a folder and returns its file ID.
type Publisher interface {
	Publish(ctx context.Context, folderID, name string, data []byte) (string, error)
}

// Client uploads files with a bearer token.
type Client struct {
	httpClient  *http.Client
	uploadURL   string
	accessToken string
}

// Options configures a Client.
type Options struct {
	AccessToken string
	// UploadURL overrides the Drive upload endpoint, used in tests.
	UploadURL  string
	HTTPClient *http.Client
}

func NewClient(opts Options) *Client {
	uploadURL := opts.UploadURL
	if uploadURL == "" {
		uploadURL = defaultUploadURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		httpClient:  hc,
		uploadURL:   uploadURL,
		accessToken: opts.AccessToken,
	}
}

type fileMetadata struct {
	Name    string   `json:"name"`
	Parents []string `json:"parents"`
}

type fileResponse struct {
	ID string `json:"id"`
}

// Publish uploads data as name into the folder. The request body is a
// multipart/related document: a JSON metadata part naming the parent folder,
// then the file bytes.
func (c *Client) Publish(ctx context.Context, folderID, name string, data []byte) (string, error) {
	start := time.Now()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := w.CreatePart(metaHeader)
	if err != nil {
		return "", fmt.Errorf("drive: metadata part: %w", err)
	}
	meta := fileMetadata{Name: name, Parents: []string{folderID}}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return "", fmt.Errorf("drive: encode metadata: %w", err)
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Type", "application/octet-stream")
	filePart, err := w.CreatePart(fileHeader)
	if err != nil {
		return "", fmt.Errorf("drive: file part: %w", err)
	}
	if _, err := filePart.Write(data); err != nil {
		return "", fmt.Errorf("drive: write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("drive: finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("drive: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "multipart/related; boundary="+w.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("drive: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("drive: upload status %d: %s",
			resp.StatusCode, logger.Sanitize(strings.TrimSpace(string(respBody))))
	}

	var created fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("drive: decode upload response: %w", err)
	}

	logger.Info(ctx, "service.submissions", "drive.published",
		slog.String("folder_id", folderID),
		slog.String("file_name", name),
		slog.Int("size_bytes", len(data)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))))
	return created.ID, nil
}
