// Package archive stores exported reports in an S3-compatible bucket
// (Cloudflare R2) and hands out time-limited download links.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrEmptyExport is returned when there is nothing to archive.
var ErrEmptyExport = errors.New("export is empty")

// Config holds bucket credentials and link lifetime.
type Config struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Prefix          string
	URLExpiry       time.Duration
}

// Receipt describes an archived export.
type Receipt struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	SizeBytes int       `json:"size_bytes"`
	ExpiresAt time.Time `json:"expires_at"`
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type getPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store writes exports to the bucket.
type Store struct {
	client    objectPutter
	presign   getPresigner
	bucket    string
	prefix    string
	urlExpiry time.Duration
	now       func() time.Time
}

// NewStore creates a Store against an R2 endpoint.
func NewStore(cfg Config) (*Store, error) {
	switch {
	case cfg.BucketName == "":
		return nil, errors.New("bucket name is required")
	case cfg.AccessKeyID == "":
		return nil, errors.New("access key ID is required")
	case cfg.SecretAccessKey == "":
		return nil, errors.New("secret access key is required")
	case cfg.Endpoint == "":
		return nil, errors.New("endpoint is required")
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 15 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "reports"
	}

	client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &Store{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    cfg.BucketName,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		urlExpiry: cfg.URLExpiry,
		now:       time.Now,
	}, nil
}

// ObjectKey builds {prefix}/{name}/{yyyy}/{mm}/{dd}/{uuid}{ext}. name is
// reduced to a safe path component.
func ObjectKey(prefix, name, ext string, at time.Time) string {
	name = sanitize(name)
	if name == "" {
		name = "export"
	}
	at = at.UTC()
	return path.Join(prefix, name, at.Format("2006/01/02"), uuid.New().String()+ext)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Put uploads data as filename under name and returns a presigned GET link.
func (s *Store) Put(ctx context.Context, name, filename, contentType string, data []byte) (*Receipt, error) {
	if len(data) == 0 {
		return nil, ErrEmptyExport
	}

	key := ObjectKey(s.prefix, name, path.Ext(filename), s.now())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentType:        aws.String(contentType),
		ContentLength:      aws.Int64(int64(len(data))),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", filename)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}

	return &Receipt{
		Key:       key,
		URL:       req.URL,
		SizeBytes: len(data),
		ExpiresAt: s.now().Add(s.urlExpiry),
	}, nil
}
