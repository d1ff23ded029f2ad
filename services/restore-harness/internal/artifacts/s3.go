// Package artifacts checks that a backup actually left objects in its storage prefix
// before the harness destroys the source topic.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// API is the subset of the S3 client used by this package.
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// Summary describes what was found under the prefix.
type Summary struct {
	Bucket  string `json:"bucket"`
	Prefix  string `json:"prefix"`
	Objects int    `json:"objects"`
	Bytes   int64  `json:"bytes"`
}

var ErrNoArtifacts = errors.New("no backup objects found")

type Checker struct {
	api    API
	bucket string
	prefix string
}

// New builds an S3 client for the backup bucket. A custom endpoint (MinIO, LocalStack) is
// used as the base endpoint; static keys override the default credential chain.
func New(ctx context.Context, cfg Config) (*Checker, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("artifacts: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("artifacts: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewFromAPI(client, cfg.Bucket, cfg.Prefix), nil
}

// NewFromAPI creates a Checker from an explicit API implementation.
func NewFromAPI(api API, bucket, prefix string) *Checker {
	return &Checker{api: api, bucket: bucket, prefix: prefix}
}

// Check lists everything under prefix/backupID (or prefix when backupID is empty).
// Zero objects is reported as ErrNoArtifacts alongside the summary.
func (c *Checker) Check(ctx context.Context, backupID string) (Summary, error) {
	prefix := joinPrefix(c.prefix, backupID)
	sum := Summary{Bucket: c.bucket, Prefix: prefix}

	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return sum, fmt.Errorf("list s3://%s/%s: %w", c.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			sum.Objects++
			sum.Bytes += aws.ToInt64(obj.Size)
		}
	}
	if sum.Objects == 0 {
		return sum, fmt.Errorf("s3://%s/%s: %w", c.bucket, prefix, ErrNoArtifacts)
	}
	return sum, nil
}

func joinPrefix(base, id string) string {
	base = strings.Trim(base, "/")
	switch {
	case base == "" && id == "":
		return ""
	case base == "":
		return id + "/"
	case id == "":
		return base + "/"
	}
	return base + "/" + id + "/"
}
