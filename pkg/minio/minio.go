package minio

import (
	"context"
	"net/url"
	"strings"
	"time"

	"influencehub/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client",
	fx.Provide(
		registerClient,
		NewSigner,
	),
)

func registerClient(c *config.Config) *minio.Client {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Fatal("failed to create MinIO client", zap.Error(err))
	}
	exists, err := client.BucketExists(context.Background(), c.Minio.BucketName)
	if err != nil {
		zap.L().Fatal("failed to check if bucket exists", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
	}
	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.Bool("bucketExists", exists))
	return client
}

type presigner interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// Signer turns stored object keys into time-limited download URLs.
type Signer struct {
	client presigner
	bucket string
	expiry time.Duration
}

func NewSigner(c *config.Config, client *minio.Client) *Signer {
	return newSigner(client, c.Minio.BucketName, c.Minio.URLExpiry)
}

func newSigner(client presigner, bucket string, expiry time.Duration) *Signer {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Signer{client: client, bucket: bucket, expiry: expiry}
}

// ResolveURL presigns object keys. Values that already are absolute URLs are
// returned unchanged.
func (s *Signer) ResolveURL(ctx context.Context, stored string) (string, error) {
	if stored == "" || isAbsolute(stored) {
		return stored, nil
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, strings.TrimPrefix(stored, "/"), s.expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func isAbsolute(v string) bool {
	u, err := url.Parse(v)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
