package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/any-hub/md-hub/internal/content"
)

const maxWorkerResponse = 4 << 20

// RemoteRenderer 调用转换 worker 的 POST /convert 接口。
type RemoteRenderer struct {
	client  *http.Client
	baseURL string
}

// NewRemoteRenderer 复用调用方提供的 http.Client（共享连接池与超时）。
func NewRemoteRenderer(client *http.Client, workerURL string) *RemoteRenderer {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteRenderer{client: client, baseURL: strings.TrimRight(workerURL, "/")}
}

type convertRequest struct {
	URL     string         `json:"url"`
	Title   string         `json:"title"`
	Format  string         `json:"format"`
	Content string         `json:"content"`
	Options convertOptions `json:"options"`
}

type convertOptions struct {
	Frontmatter bool `json:"frontmatter"`
	Footer      bool `json:"footer"`
}

type convertResponse struct {
	Markdown string `json:"markdown"`
	Error    string `json:"error"`
}

// Render 实现 Renderer；非 2xx 或空结果都视为失败。
func (r *RemoteRenderer) Render(ctx context.Context, doc content.Document, permalink string) (string, error) {
	payload, err := json.Marshal(convertRequest{
		URL:     permalink,
		Title:   doc.Title,
		Format:  doc.Format,
		Content: doc.Body,
		Options: convertOptions{Frontmatter: true, Footer: true},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/convert", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/markdown, application/json;q=0.9")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call worker: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWorkerResponse+1))
	if err != nil {
		return "", fmt.Errorf("read worker response: %w", err)
	}
	if len(body) > maxWorkerResponse {
		return "", fmt.Errorf("%w: worker response", ErrContentTooLarge)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("worker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	text := string(body)
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/json" {
		var decoded convertResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return "", fmt.Errorf("decode worker response: %w", err)
		}
		if decoded.Error != "" {
			return "", fmt.Errorf("worker error: %s", decoded.Error)
		}
		text = decoded.Markdown
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("worker returned empty markdown")
	}
	return text, nil
}
