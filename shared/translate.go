package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Translator turns a batch of paragraphs into the target language,
// returning exactly one translation per input text.
type Translator interface {
	Translate(ctx context.Context, texts []string, targetLang string) ([]string, error)
}

type engineRequest struct {
	Texts      []string `json:"texts"`
	TargetLang string   `json:"target_lang"`
}

type engineResponse struct {
	Translations []string `json:"translations"`
	Error        string   `json:"error,omitempty"`
}

// HTTPTranslator calls a translation engine over JSON.
type HTTPTranslator struct {
	endpoint string
	client   *http.Client
}

func NewHTTPTranslator(endpoint string, timeout time.Duration) *HTTPTranslator {
	return &HTTPTranslator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTranslator) Translate(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}
	body, err := json.Marshal(engineRequest{Texts: texts, TargetLang: targetLang})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translation engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read engine response: %w", err)
	}
	var out engineResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("translation engine returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return nil, fmt.Errorf("decode engine response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("translation engine: %s", out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("translation engine returned HTTP %d", resp.StatusCode)
	}
	if len(out.Translations) != len(texts) {
		return nil, fmt.Errorf("translation engine returned %d texts for %d inputs", len(out.Translations), len(texts))
	}
	return out.Translations, nil
}

// PassthroughTranslator returns its input unchanged; used when no engine is configured.
type PassthroughTranslator struct{}

func (PassthroughTranslator) Translate(_ context.Context, texts []string, _ string) ([]string, error) {
	out := make([]string, len(texts))
	copy(out, texts)
	return out, nil
}
