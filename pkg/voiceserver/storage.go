package voiceserver

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// UploadPrefix is the key prefix every recording is stored under.
const UploadPrefix = "uploads/"

// StoredObject is one recording in the bucket.
type StoredObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Name is the key without the upload prefix.
func (o StoredObject) Name() string {
	return strings.TrimPrefix(o.Key, UploadPrefix)
}

// ObjectStore is the bucket the service writes recordings into.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]StoredObject, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// S3Store keeps recordings in a single S3 bucket.
type S3Store struct {
	client   s3iface.S3API
	bucket   string
	region   string
	endpoint string
}

// NewS3Store builds a store from settings. Static credentials are used when
// both keys are set; otherwise the default AWS chain applies.
func NewS3Store(settings *Settings) (*S3Store, error) {
	cfg := &aws.Config{Region: aws.String(settings.AWSRegion)}
	if settings.AWSAccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(settings.AWSAccessKeyID, settings.AWSSecretAccessKey, "")
	}
	if settings.S3Endpoint != "" {
		cfg.Endpoint = aws.String(settings.S3Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewS3StoreWithClient(s3.New(sess), settings), nil
}

func NewS3StoreWithClient(client s3iface.S3API, settings *Settings) *S3Store {
	return &S3Store{
		client:   client,
		bucket:   settings.S3BucketName,
		region:   settings.AWSRegion,
		endpoint: strings.TrimRight(settings.S3Endpoint, "/"),
	}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := s.client.PutObjectWithContext(ctx, input)
	return err
}

// List returns objects under prefix, newest first.
func (s *S3Store) List(ctx context.Context, prefix string) ([]StoredObject, error) {
	objects := make([]StoredObject, 0)
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, StoredObject{
				Key:          key,
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	return objects, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// URL is the public virtual-hosted address of key, or the path-style
// address under a custom endpoint.
func (s *S3Store) URL(key string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// errorCode extracts the AWS error code, or "Unknown".
func errorCode(err error) string {
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code()
	}
	return "Unknown"
}
