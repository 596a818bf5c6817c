package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/buger/jsonparser"
)

// ErrRecognitionFailed is returned when the service answers 200 but reports
// a result other than COMPLETED.
var ErrRecognitionFailed = errors.New("speech recognition failed")

// ClovaClient calls the Clova Speech long-sentence recognizer in synchronous
// mode. Implements the Provider interface.
type ClovaClient struct {
	invokeURL string
	secretKey string
	language  string
	client    *http.Client
}

// clovaParams is the "params" form field of an upload request.
type clovaParams struct {
	Language       string          `json:"language"`
	Completion     string          `json:"completion"`
	WordAlignment  bool            `json:"wordAlignment"`
	FullText       bool            `json:"fullText"`
	Diarization    clovaDiarOption `json:"diarization"`
	NoiseFiltering bool            `json:"noiseFiltering"`
}

type clovaDiarOption struct {
	Enable bool `json:"enable"`
}

// NewClovaClient creates a new Clova Speech client. invokeURL is the
// per-domain base URL issued by the console.
func NewClovaClient(invokeURL, secretKey, language string, timeout time.Duration) *ClovaClient {
	return &ClovaClient{
		invokeURL: strings.TrimRight(invokeURL, "/"),
		secretKey: secretKey,
		language:  language,
		client:    &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (c *ClovaClient) Name() string { return "clova" }

// Transcribe uploads an audio file and returns the response body.
func (c *ClovaClient) Transcribe(ctx context.Context, audioPath string) ([]byte, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// Audio file field
	part, err := w.CreateFormFile("media", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	params, err := json.Marshal(clovaParams{
		Language:       c.language,
		Completion:     "sync",
		WordAlignment:  true,
		FullText:       true,
		Diarization:    clovaDiarOption{Enable: true},
		NoiseFiltering: true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	w.WriteField("params", string(params))
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.invokeURL+"/recognizer/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CLOVASPEECH-API-KEY", c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clova request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clova API error (status %d): %s", resp.StatusCode, truncate(string(body), 512))
	}

	if result, err := jsonparser.GetString(body, "result"); err == nil && result != "COMPLETED" {
		msg, _ := jsonparser.GetString(body, "message")
		return nil, fmt.Errorf("%w: result %s: %s", ErrRecognitionFailed, result, msg)
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
