package minio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"policyhub/internal/config"
)

var (
	client  *minio.Client
	once    sync.Once
	initErr error
)

// GetClient initializes and returns a singleton MinIO client instance.
func GetClient(cfg *config.MinIOConfig) (*minio.Client, error) {
	once.Do(func() {
		c, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
		})
		if err != nil {
			initErr = fmt.Errorf("unable to create MinIO client: %w", err)
			return
		}

		// Simple health check at init time.
		if _, err := c.ListBuckets(context.Background()); err != nil {
			initErr = fmt.Errorf("MinIO init health check failed: %w", err)
			return
		}

		log.Println("✅ Connected to MinIO!")
		client = c
	})

	return client, initErr
}

// EnsureBucket creates the configured bucket if it does not exist yet.
func EnsureBucket(ctx context.Context, c *minio.Client, bucket string) error {
	exists, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket '%s': %w", bucket, err)
	}
	if !exists {
		if err := c.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket '%s': %w", bucket, err)
		}
		log.Printf("✅ Created bucket '%s'.", bucket)
	}
	return nil
}

// HealthCheck verifies connectivity and credentials by listing buckets.
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("MinIO client is not initialized")
	}
	if _, err := client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("MinIO health check failed: %w", err)
	}
	return nil
}
