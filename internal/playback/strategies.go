package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

type strategy interface {
	name() string
	play(ctx context.Context, url string) error
}

// directStrategy verifies the resource is reachable, then streams it
// straight from the network through the output.
type directStrategy struct {
	client *http.Client
	output Output
}

func (s *directStrategy) name() string { return "direct" }

func (s *directStrategy) play(ctx context.Context, url string) error {
	head, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("creating HEAD request: %w", err)
	}
	resp, err := s.client.Do(head)
	if err != nil {
		return fmt.Errorf("checking resource: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("resource not reachable: %s", resp.Status)
	}

	get, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating GET request: %w", err)
	}
	audio, err := s.client.Do(get)
	if err != nil {
		return fmt.Errorf("fetching audio: %w", err)
	}
	defer audio.Body.Close()

	return s.output.Stream(ctx, audio.Body, audio.Header.Get("Content-Type"))
}

// blobStrategy downloads the full resource to a local copy first and plays
// from that, removing the copy on completion.
type blobStrategy struct {
	client *http.Client
	output Output
}

func (s *blobStrategy) name() string { return "blob" }

func (s *blobStrategy) play(ctx context.Context, url string) error {
	data, mime, err := fetchAll(ctx, s.client, url)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "agora-playback-*")
	if err != nil {
		return fmt.Errorf("creating local copy: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing local copy: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return fmt.Errorf("rewinding local copy: %w", err)
	}
	defer tmp.Close()

	return s.output.Stream(ctx, tmp, mime)
}

// bufferStrategy fetches the raw bytes, decodes them itself, and renders the
// samples through the output's PCM path.
type bufferStrategy struct {
	client *http.Client
	output Output
}

func (s *bufferStrategy) name() string { return "buffer" }

func (s *bufferStrategy) play(ctx context.Context, url string) error {
	data, _, err := fetchAll(ctx, s.client, url)
	if err != nil {
		return err
	}

	samples, sampleRate, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding audio: %w", err)
	}

	return s.output.RenderPCM(ctx, samples, sampleRate)
}

func fetchAll(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching audio: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 50*1024*1024))
	if err != nil {
		return nil, "", fmt.Errorf("reading audio body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
