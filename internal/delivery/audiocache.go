package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"agora/internal/domain"
)

// maxCachedResponses bounds the in-memory audio cache; responses are small
// and short-lived, one per recent run.
const maxCachedResponses = 16

// AudioCache is the AudioPublisher used when no object store is configured:
// synthesized audio is held in memory and served from the API itself, so
// playback still gets a fetchable URL.
type AudioCache struct {
	baseURL string

	mu      sync.Mutex
	entries map[string]domain.SynthesizedAudio
	order   []string
}

func NewAudioCache(baseURL string) *AudioCache {
	return &AudioCache{
		baseURL: strings.TrimRight(baseURL, "/"),
		entries: make(map[string]domain.SynthesizedAudio),
	}
}

func (c *AudioCache) Publish(_ context.Context, runID string, audio domain.SynthesizedAudio) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("no audio to publish")
	}

	c.mu.Lock()
	if _, exists := c.entries[runID]; !exists {
		c.order = append(c.order, runID)
	}
	c.entries[runID] = audio
	for len(c.order) > maxCachedResponses {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.mu.Unlock()

	return fmt.Sprintf("%s/api/audio/%s", c.baseURL, runID), nil
}

func (c *AudioCache) Get(runID string) (domain.SynthesizedAudio, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	audio, ok := c.entries[runID]
	return audio, ok
}
