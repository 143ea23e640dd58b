package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"prebidOptimizer/business/job"
	"prebidOptimizer/domain"
	"prebidOptimizer/pkg/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const DistributionsObject = "distributions.json"

// DistributionRepository writes the reduced distribution view to
// gs://<bucket for env>/<config_id>/distributions.json.
type DistributionRepository struct {
	client         *storage.Client
	bucketTemplate string
}

var _ job.DistributionPublisher = (*DistributionRepository)(nil)

// NewStorageClient uses the service account key when one is given and
// application default credentials otherwise.
func NewStorageClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return client, nil
}

func NewDistributionRepository(client *storage.Client, bucketTemplate string) *DistributionRepository {
	return &DistributionRepository{client: client, bucketTemplate: bucketTemplate}
}

func (r *DistributionRepository) Name() string { return "gcs" }

func (r *DistributionRepository) BucketName(env string) string {
	return strings.ReplaceAll(r.bucketTemplate, "{env}", env)
}

func ObjectName(configID string) string {
	return path.Join(configID, DistributionsObject)
}

func (r *DistributionRepository) PublishDistributions(ctx context.Context, env, configID string, set domain.DistributionSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal distributions: %w", err)
	}

	bucket, object := r.BucketName(env), ObjectName(configID)
	writer := r.client.Bucket(bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", bucket, object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for gs://%s/%s: %w", bucket, object, err)
	}

	logger.Info("Uploaded distributions", "bucket", bucket, "object", object)
	return nil
}

func (r *DistributionRepository) GetDistributions(ctx context.Context, env, configID string) (*domain.DistributionSet, error) {
	bucket, object := r.BucketName(env), ObjectName(configID)
	reader, err := r.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, domain.ErrDistributionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}

	var set domain.DistributionSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode distributions: %w", err)
	}
	return &set, nil
}
