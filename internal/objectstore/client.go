package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fyrsmithlabs/insightverse/internal/config"
	"github.com/fyrsmithlabs/insightverse/internal/logging"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/insightverse/internal/objectstore")

// DefaultPresignExpiry is how long an upload URL stays valid.
const DefaultPresignExpiry = 10 * time.Minute

// Fetcher reads stored objects.
type Fetcher interface {
	FetchBytes(ctx context.Context, ref Reference) ([]byte, error)
}

// Upload is a presigned upload grant.
type Upload struct {
	UploadURL string `json:"uploadUrl"`
	FileURL   string `json:"fileUrl"`
}

// Client wraps a MinIO client.
type Client struct {
	mc     *minio.Client
	expiry time.Duration
	logger *logging.Logger
}

// New creates a Client from storage config. No request is made.
func New(cfg config.StorageConfig, logger *logging.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey.Value(), cfg.SecretKey.Value(), ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	expiry := cfg.PresignExpiry.Duration()
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &Client{mc: mc, expiry: expiry, logger: logger.Named("objectstore")}, nil
}

// FetchBytes downloads the whole object.
func (c *Client) FetchBytes(ctx context.Context, ref Reference) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "objectstore.FetchBytes")
	defer span.End()
	span.SetAttributes(
		attribute.String("bucket", ref.Bucket),
		attribute.String("object", ref.Object),
	)

	obj, err := c.mc.GetObject(ctx, ref.Bucket, ref.Object, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("getting %s: %w", ref, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("reading %s: %w", ref, err)
	}

	span.SetAttributes(attribute.Int("bytes", len(data)))
	span.SetStatus(codes.Ok, "success")
	c.logger.Debug(ctx, "fetched object", zap.Stringer("ref", ref), zap.Int("bytes", len(data)))
	return data, nil
}

// IssueUploadURL presigns a PUT for name in the bucket matching
// contentType. Unsupported types return ErrUnsupportedType.
func (c *Client) IssueUploadURL(ctx context.Context, contentType, name string) (Upload, error) {
	bucket, ok := BucketFor(contentType)
	if !ok {
		return Upload{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if name == "" {
		return Upload{}, fmt.Errorf("%w: empty object name", ErrInvalidReference)
	}

	u, err := c.mc.PresignedPutObject(ctx, bucket, name, c.expiry)
	if err != nil {
		return Upload{}, fmt.Errorf("presigning %s/%s: %w", bucket, name, err)
	}
	ref := Reference{Bucket: bucket, Object: name}
	c.logger.Info(ctx, "issued upload url",
		zap.Stringer("ref", ref),
		zap.Duration("expiry", c.expiry),
	)
	return Upload{UploadURL: u.String(), FileURL: ref.String()}, nil
}

// EnsureBuckets creates any missing upload bucket.
func (c *Client) EnsureBuckets(ctx context.Context) error {
	for _, b := range Buckets() {
		exists, err := c.mc.BucketExists(ctx, b)
		if err != nil {
			return fmt.Errorf("checking bucket %s: %w", b, err)
		}
		if exists {
			continue
		}
		if err := c.mc.MakeBucket(ctx, b, minio.MakeBucketOptions{}); err != nil {
			code := minio.ToErrorResponse(err).Code
			if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
				continue
			}
			return fmt.Errorf("creating bucket %s: %w", b, err)
		}
		c.logger.Info(ctx, "created bucket", zap.String("bucket", b))
	}
	return nil
}

// IsNotFound reports whether err means the object is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
