package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/permitlink/internal/config"
)

// RawStore archives raw page payloads to object storage as .json.gz so
// a batch can be replayed or audited without re-hitting the portal.
type RawStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

func NewRawStore(cfg config.ArchiveConfig, logger *zap.Logger) (*RawStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &RawStore{client: cli, bucket: cfg.Bucket, logger: logger}, nil
}

// ArchivePage writes one page of raw attributes under
// layer=<key>/offset=<n>.json.gz.
func (s *RawStore) ArchivePage(ctx context.Context, layerKey string, offset int, records []map[string]any) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal page: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	key := fmt.Sprintf("layer=%s/offset=%09d.json.gz", layerKey, offset)
	reader := bytes.NewReader(buf.Bytes())
	_, err = s.client.PutObject(ctx, s.bucket, key, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType:     "application/json",
		ContentEncoding: "gzip",
		UserMetadata: map[string]string{
			"layer_key":  layerKey,
			"offset":     fmt.Sprintf("%d", offset),
			"records":    fmt.Sprintf("%d", len(records)),
			"created_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive page %s: %w", key, err)
	}
	return nil
}
