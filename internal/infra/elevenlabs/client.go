package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"agora/internal/domain"
	"agora/internal/infra"
)

// ErrDisabled is returned when no API key is configured. The orchestrator
// treats it as a degraded run: the textual response is still delivered.
var ErrDisabled = errors.New("speech synthesis disabled: no elevenlabs api key")

const (
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID = "eleven_multilingual_v2"
)

// Client renders response text as speech through the ElevenLabs API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	voiceID    string
	modelID    string
}

func NewClient(apiKey, voiceID, modelID string) *Client {
	return NewClientWithURL(apiKey, voiceID, modelID, "https://api.elevenlabs.io/v1")
}

func NewClientWithURL(apiKey, voiceID, modelID, baseURL string) *Client {
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	if modelID == "" {
		modelID = defaultModelID
	}
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		voiceID:    voiceID,
		modelID:    modelID,
	}
}

// Enabled reports whether a key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

type synthesisBody struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings map[string]any `json:"voice_settings,omitempty"`
}

func (c *Client) Synthesize(ctx context.Context, req domain.SynthesisRequest) (domain.SynthesizedAudio, error) {
	if !c.Enabled() {
		return domain.SynthesizedAudio{}, ErrDisabled
	}
	if req.Text == "" {
		return domain.SynthesizedAudio{}, fmt.Errorf("empty synthesis text")
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = c.voiceID
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = c.modelID
	}

	settings := req.VoiceSettings
	if settings == nil {
		settings = map[string]any{"stability": 0.5, "similarity_boost": 0.75}
	}

	bodyBytes, err := json.Marshal(synthesisBody{
		Text:          req.Text,
		ModelID:       modelID,
		VoiceSettings: settings,
	})
	if err != nil {
		return domain.SynthesizedAudio{}, fmt.Errorf("marshaling request: %w", err)
	}

	var audio []byte
	retryErr := infra.Retry(ctx, infra.DefaultBackoff(), func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, voiceID), bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "audio/mpeg")
		httpReq.Header.Set("xi-api-key", c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			if infra.RetryableStatus(resp.StatusCode) {
				return fmt.Errorf("elevenlabs API error %d: %s", resp.StatusCode, string(respBody))
			}
			return infra.Permanent(fmt.Errorf("elevenlabs API error %d: %s", resp.StatusCode, string(respBody)))
		}

		audio, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading audio body: %w", err)
		}
		return nil
	})

	if retryErr != nil {
		return domain.SynthesizedAudio{}, domain.NewNetworkError(domain.NetworkServerError, retryErr)
	}

	return domain.SynthesizedAudio{Data: audio, MIMEType: "audio/mpeg"}, nil
}
