package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/aspexa/automa/pkg/models"
)

// Object keys are deterministic per artifact kind.
const (
	blueprintKeyFmt = "blueprints/%s.json"
	probeKeyFmt     = "probes/%s.json"
	exploitKeyFmt   = "exploits/%s.json"
)

// S3Store serves blueprints, probe findings, and exploit results from one
// bucket. It implements BlueprintStore and ResultStore.
type S3Store struct {
	client *s3.Client
	bucket string
	log    *slog.Logger
}

// NewS3Store wraps an S3 client and bucket.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		log:    slog.With("component", "s3_store", "bucket", bucket),
	}
}

// NewS3Client builds an S3 client from ambient AWS configuration. A
// non-empty endpoint points the client at an S3-compatible store (minio).
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Load fetches the recon blueprint for the scan.
func (s *S3Store) Load(ctx context.Context, reconScanID string) (*models.ReconBlueprint, error) {
	var bp models.ReconBlueprint
	if err := s.getJSON(ctx, fmt.Sprintf(blueprintKeyFmt, reconScanID), &bp); err != nil {
		return nil, err
	}
	return &bp, nil
}

// LoadClusters fetches the probe phase's vulnerability clusters.
func (s *S3Store) LoadClusters(ctx context.Context, probeScanID string) ([]models.VulnerabilityCluster, error) {
	var clusters []models.VulnerabilityCluster
	if err := s.getJSON(ctx, fmt.Sprintf(probeKeyFmt, probeScanID), &clusters); err != nil {
		return nil, err
	}
	return clusters, nil
}

// SaveExploit writes the final exploit result at its deterministic key.
func (s *S3Store) SaveExploit(ctx context.Context, campaignID string, result *models.ExploitResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode exploit result: %w", err)
	}

	key := fmt.Sprintf(exploitKeyFmt, campaignID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to store exploit result at %s: %w", key, err)
	}

	s.log.Info("Stored exploit result", "key", key, "bytes", len(data))
	return nil
}

// LoadExploit reads a previously saved exploit result.
func (s *S3Store) LoadExploit(ctx context.Context, campaignID string) (*models.ExploitResult, error) {
	var result models.ExploitResult
	if err := s.getJSON(ctx, fmt.Sprintf(exploitKeyFmt, campaignID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *S3Store) getJSON(ctx context.Context, key string, out any) error {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
