package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"agora/internal/domain"
)

// AudioStore keeps synthesized responses in an S3-compatible bucket and
// hands playback a presigned URL.
type AudioStore struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
	logger *slog.Logger
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLTTL    time.Duration
}

func New(cfg Config, logger *slog.Logger) (*AudioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	ttl := cfg.URLTTL
	if ttl == 0 {
		ttl = time.Hour
	}

	return &AudioStore{
		client: client,
		bucket: cfg.Bucket,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet. Called once at
// startup.
func (s *AudioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Publish uploads the audio under the run's ID and returns a presigned GET
// URL playback can fetch.
func (s *AudioStore) Publish(ctx context.Context, runID string, audio domain.SynthesizedAudio) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("no audio to publish")
	}

	contentType := audio.MIMEType
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	object := fmt.Sprintf("responses/%s%s", runID, extensionFor(contentType))

	_, err := s.client.PutObject(ctx, s.bucket, object,
		bytes.NewReader(audio.Data), int64(len(audio.Data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("uploading audio: %w", err)
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, object, s.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning audio url: %w", err)
	}

	s.logger.Debug("audio published", "object", object, "bytes", len(audio.Data))
	return presigned.String(), nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "audio/mpeg":
		return ".mp3"
	case domain.MIMEWav:
		return ".wav"
	default:
		return ""
	}
}
