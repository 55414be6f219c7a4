package diagram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxSVGBytes bounds a Kroki response.
const maxSVGBytes = 4 << 20

// KrokiEngine renders diagrams through a Kroki server.
type KrokiEngine struct {
	baseURL    string
	settings   Settings
	httpClient *http.Client
}

func NewKrokiEngine(baseURL string, settings Settings) *KrokiEngine {
	return &KrokiEngine{
		baseURL:  strings.TrimRight(baseURL, "/"),
		settings: Initialize(settings),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// KrokiLoader returns a LoadFunc that resolves a KrokiEngine.
func KrokiLoader(baseURL string, settings Settings) LoadFunc {
	return func(ctx context.Context) (Engine, error) {
		if baseURL == "" {
			return nil, fmt.Errorf("kroki url not configured")
		}
		return NewKrokiEngine(baseURL, settings), nil
	}
}

func (k *KrokiEngine) Render(ctx context.Context, id, source string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/mermaid/svg", bytes.NewReader([]byte(source)))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "image/svg+xml")
	req.Header.Set("Kroki-Diagram-Options-Theme", k.settings.Theme)
	req.Header.Set("Kroki-Diagram-Options-Security-Level", k.settings.SecurityLevel)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("kroki: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSVGBytes+1))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxSVGBytes {
		return "", &RenderError{Message: fmt.Sprintf("rendered diagram exceeds %d bytes", maxSVGBytes)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if resp.StatusCode == http.StatusBadRequest {
		return "", &RenderError{Message: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("kroki status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return withID(string(body), id), nil
}

// Close releases resources.
func (k *KrokiEngine) Close() {
	k.httpClient.CloseIdleConnections()
}

// withID sets the id of the root svg element when it has none.
func withID(svg, id string) string {
	i := strings.Index(svg, "<svg")
	if i < 0 {
		return svg
	}
	end := strings.IndexByte(svg[i:], '>')
	if end < 0 || strings.Contains(svg[i:i+end], " id=") {
		return svg
	}
	return svg[:i+4] + ` id="` + id + `"` + svg[i+4:]
}
