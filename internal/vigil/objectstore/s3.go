package objectstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"vigilstream/pkg/errors"
	"vigilstream/pkg/logger"
)

// DurationMetadataKey is the user metadata key uploaders set on the object.
const DurationMetadataKey = "duration"

type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 reads object metadata from an S3 bucket. Duration comes from the
// object's user metadata.
type S3 struct {
	client s3API
	bucket string
	region string
	logger *logger.Logger
}

// NewS3 loads AWS credentials from the default chain.
func NewS3(ctx context.Context, bucket, region string) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 object store requires a bucket")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return newS3(s3.NewFromConfig(cfg), bucket, region), nil
}

func newS3(client s3API, bucket, region string) *S3 {
	return &S3{
		client: client,
		bucket: bucket,
		region: region,
		logger: logger.WithFields("component", "objectstore-s3", "bucket", bucket),
	}
}

func (s *S3) FetchMetadata(ctx context.Context, ref string) (Metadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		var nf *types.NotFound
		if stderrors.As(err, &nf) {
			return Metadata{}, fmt.Errorf("%w: %s", errors.ErrObjectNotFound, ref)
		}
		return Metadata{}, fmt.Errorf("failed to head object %s: %w", ref, err)
	}

	for k, v := range out.Metadata {
		if !strings.EqualFold(k, DurationMetadataKey) {
			continue
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Metadata{}, fmt.Errorf("invalid duration metadata %q on %s: %w", v, ref, err)
		}
		return Metadata{DurationSeconds: &d}, nil
	}

	s.logger.Debug("object has no duration metadata", "ref", ref)
	return Metadata{}, nil
}

func (s *S3) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", ref, err)
	}
	return nil
}

func (s *S3) URL(ref string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, strings.TrimLeft(ref, "/"))
}
