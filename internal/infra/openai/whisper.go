package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"agora/internal/domain"
	"agora/internal/infra"
)

// WhisperClient transcribes finished recordings through the OpenAI audio
// API. The 30 second client timeout matches the pipeline's transcription
// deadline; the orchestrator's context is the authoritative one.
type WhisperClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	language   string
	prompt     string
}

func NewWhisperClient(apiKey, language string) *WhisperClient {
	return NewWhisperClientWithURL(apiKey, language, "https://api.openai.com/v1")
}

func NewWhisperClientWithURL(apiKey, language, baseURL string) *WhisperClient {
	return &WhisperClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		language:   language,
	}
}

// SetPrompt sets the optional transcription hint sent with every request.
func (c *WhisperClient) SetPrompt(prompt string) { c.prompt = prompt }

type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (c *WhisperClient) Transcribe(ctx context.Context, rec domain.Recording) (string, error) {
	var result transcriptionResponse

	retryErr := infra.Retry(ctx, infra.DefaultBackoff(), func() error {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		part, err := writer.CreateFormFile("file", "audio"+extensionFor(rec.MIMEType))
		if err != nil {
			return fmt.Errorf("creating form file: %w", err)
		}
		if _, err = part.Write(rec.Data); err != nil {
			return fmt.Errorf("writing audio: %w", err)
		}

		if err = writer.WriteField("model", "whisper-1"); err != nil {
			return fmt.Errorf("writing model field: %w", err)
		}
		if c.language != "" {
			if err = writer.WriteField("language", c.language); err != nil {
				return fmt.Errorf("writing language field: %w", err)
			}
		}
		if c.prompt != "" {
			if err = writer.WriteField("prompt", c.prompt); err != nil {
				return fmt.Errorf("writing prompt field: %w", err)
			}
		}
		if err = writer.Close(); err != nil {
			return fmt.Errorf("closing writer: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			if infra.RetryableStatus(resp.StatusCode) {
				return fmt.Errorf("whisper API error %d: %s", resp.StatusCode, string(respBody))
			}
			return infra.Permanent(fmt.Errorf("whisper API error %d: %s", resp.StatusCode, string(respBody)))
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	})

	if retryErr != nil {
		if errors.Is(retryErr, context.DeadlineExceeded) {
			return "", domain.NewNetworkError(domain.NetworkTimeout, retryErr)
		}
		return "", domain.NewNetworkError(domain.NetworkServerError, retryErr)
	}

	return result.Text, nil
}

func extensionFor(mimeType string) string {
	base := mimeType
	if i := strings.Index(base, ";"); i >= 0 {
		base = base[:i]
	}
	switch base {
	case domain.MIMEWebM:
		return ".webm"
	case domain.MIMEMP4:
		return ".mp4"
	case "audio/ogg":
		return ".ogg"
	case domain.MIMEWav, "audio/x-wav":
		return ".wav"
	default:
		return ".webm"
	}
}
