package minio

import (
	"context"

	"license-controlplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client",
	fx.Provide(registerClient),
	fx.Invoke(EnsureBucket),
)

func registerClient(c *config.Config) (*minio.Client, error) {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Error("failed to create MinIO client", zap.String("endpoint", c.Minio.Endpoint), zap.Error(err))
		return nil, err
	}
	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint))
	return client, nil
}

// EnsureBucket creates the artifact bucket on start when it does not exist yet.
func EnsureBucket(lc fx.Lifecycle, client *minio.Client, c *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			bucket := c.Minio.BucketName
			exists, err := client.BucketExists(ctx, bucket)
			if err != nil {
				zap.L().Error("failed to check if bucket exists", zap.String("bucket", bucket), zap.Error(err))
				return err
			}
			if exists {
				zap.L().Info("MinIO bucket ready", zap.String("bucket", bucket))
				return nil
			}
			if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				zap.L().Error("failed to create bucket", zap.String("bucket", bucket), zap.Error(err))
				return err
			}
			zap.L().Info("MinIO bucket created", zap.String("bucket", bucket))
			return nil
		},
	})
}
