package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/orbitsocial/backend/internal/config"
	"github.com/orbitsocial/backend/internal/directory"
)

// AvatarStore resolves opaque avatar references to fetchable URLs and uploads
// new avatar assets, backed by an S3-compatible object store.
type AvatarStore struct {
	uploader *manager.Uploader
	presign  *s3.PresignClient
	bucket   string
	baseURL  string
	urlTTL   time.Duration
}

// NewAvatarStore configures the store against the provided bucket.
func NewAvatarStore(ctx context.Context, cfg config.ObjectStoreConfig) (*AvatarStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("avatar store: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if strings.TrimSpace(cfg.Endpoint) != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:           cfg.Endpoint,
					SigningRegion: cfg.Region,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	urlTTL := cfg.URLTTL
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}

	return &AvatarStore{
		uploader: uploader,
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		urlTTL:   urlTTL,
	}, nil
}

// Save uploads avatar content under the given reference and returns the
// reference to store on the profile.
func (s *AvatarStore) Save(ctx context.Context, ref string, r io.Reader) (string, error) {
	key := strings.TrimLeft(ref, "/")
	if key == "" {
		return "", fmt.Errorf("avatar store: empty reference")
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   manager.ReadSeekCloser(r),
	})
	if err != nil {
		return "", fmt.Errorf("avatar upload %s: %w", key, err)
	}

	return key, nil
}

// Resolve turns an avatar reference into a URL: a public URL when the bucket
// fronts one, otherwise a presigned GET valid for the configured TTL.
func (s *AvatarStore) Resolve(ctx context.Context, ref string) (string, error) {
	key := strings.TrimLeft(ref, "/")
	if key == "" {
		return "", fmt.Errorf("avatar store: empty reference")
	}

	if s.baseURL != "" {
		return fmt.Sprintf("%s/%s", s.baseURL, key), nil
	}

	signed, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlTTL))
	if err != nil {
		return "", fmt.Errorf("presign avatar %s: %w", key, err)
	}
	return signed.URL, nil
}

var _ directory.AvatarResolver = (*AvatarStore)(nil)
