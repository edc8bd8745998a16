package report

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	"branchcheck/internal/config"
	"branchcheck/internal/domain"
)

// Sink stores a report under name and returns where it went. Close releases
// the sink's client; a sink is not used after Close.
type Sink interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
	Close() error
}

// newSink is replaced in tests.
var newSink = NewSink

// NewSink picks a sink by URI scheme: s3://bucket/prefix, gs://bucket/prefix,
// az://container/prefix, file:///dir, or a bare directory path.
func NewSink(ctx context.Context, uri string, cfg config.ReportConfig) (Sink, error) {
	if uri == "" {
		return nil, domain.ErrValidation("report sink is required")
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 { // a Windows drive letter parses as a scheme
		return &FileSink{Dir: uri}, nil
	}

	prefix := strings.Trim(u.Path, "/")
	switch u.Scheme {
	case "file":
		return &FileSink{Dir: u.Path}, nil
	case "s3":
		if u.Host == "" {
			return nil, domain.ErrValidation("s3 sink %q has no bucket", uri)
		}
		return NewS3Sink(cfg.S3, u.Host, prefix), nil
	case "gs":
		if u.Host == "" {
			return nil, domain.ErrValidation("gs sink %q has no bucket", uri)
		}
		return NewGCSSink(ctx, cfg.GCS, u.Host, prefix)
	case "az":
		if u.Host == "" {
			return nil, domain.ErrValidation("az sink %q has no container", uri)
		}
		return NewAzureSink(cfg.Azure, u.Host, prefix)
	}
	return nil, domain.ErrValidation("unsupported report sink scheme %q", u.Scheme)
}

// Export serializes rs and stores it as <runID>.<ext>.
func Export(ctx context.Context, sink Sink, runID string, rs *domain.ResultSet, f Format) (string, error) {
	var buf bytes.Buffer
	if err := Write(&buf, rs, f); err != nil {
		return "", err
	}
	return sink.Put(ctx, runID+"."+f.Ext(), f.ContentType(), buf.Bytes())
}

// Publish opens the sink for uri, exports rs to it, and closes the sink.
func Publish(ctx context.Context, uri string, cfg config.ReportConfig, runID string, rs *domain.ResultSet, f Format) (loc string, err error) {
	sink, err := newSink(ctx, uri, cfg)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report sink: %w", cerr)
		}
	}()
	return Export(ctx, sink, runID, rs, f)
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// FileSink writes reports into a local directory.
type FileSink struct {
	Dir string
}

// Put writes data to Dir/name, creating Dir if needed.
func (s *FileSink) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	p := filepath.Join(s.Dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return p, nil
}

func (s *FileSink) Close() error { return nil }

// s3PutAPI is the part of *s3.Client the sink uses.
type s3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads reports to an S3-compatible bucket.
type S3Sink struct {
	client s3PutAPI
	bucket string
	prefix string
}

// NewS3Sink creates an S3 sink. A custom endpoint switches to path-style
// addressing for S3-compatible stores. Requests are unsigned when no key id
// is configured.
func NewS3Sink(cfg config.S3Config, bucket, prefix string) *S3Sink {
	opts := s3.Options{
		Region:                     cfg.Region,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if cfg.KeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.KeyID, cfg.Secret, "")
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return &S3Sink{client: s3.New(opts), bucket: bucket, prefix: prefix}
}

// Put uploads data to s3://bucket/prefix/name.
func (s *S3Sink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := objectKey(s.prefix, name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Close is a no-op: the S3 client holds no resources of its own.
func (s *S3Sink) Close() error { return nil }

// GCSSink uploads reports to a Google Cloud Storage bucket.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink creates a GCS sink. Without a credentials file the client uses
// application default credentials.
func NewGCSSink(ctx context.Context, cfg config.GCSConfig, bucket, prefix string) (*GCSSink, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket, prefix: prefix}, nil
}

// Put uploads data to gs://bucket/prefix/name.
func (s *GCSSink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := objectKey(s.prefix, name)
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gs://%s/%s: %w", s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gs://%s/%s: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

// Close closes the GCS client. Later calls do nothing.
func (s *GCSSink) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// AzureSink uploads reports to an Azure Blob Storage container.
type AzureSink struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureSink creates an Azure sink using shared-key credentials.
func NewAzureSink(cfg config.AzureConfig, container, prefix string) (*AzureSink, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, domain.ErrValidation("azure sink requires account name and account key")
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureSink{client: client, container: container, prefix: prefix}, nil
}

// Put uploads data to az://container/prefix/name.
func (s *AzureSink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := objectKey(s.prefix, name)
	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("upload az://%s/%s: %w", s.container, key, err)
	}
	return fmt.Sprintf("az://%s/%s", s.container, key), nil
}

func (s *AzureSink) Close() error { return nil }
