package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"remixai/config"
	"remixai/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	minioClient *minio.Client
	minioBucket string
)

// InitMinio initializes the optional object-storage archive. When no
// endpoint is configured the client stays nil and archiving is skipped.
func InitMinio(cfg *config.Config) error {
	if cfg.MinioEndpoint == "" {
		return nil
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("created archive bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	minioBucket = cfg.MinioBucket
	logger.Info("MinIO archive initialized",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return nil
}

// GetMinioClient returns the archive client, or nil when archiving is off.
func GetMinioClient() *minio.Client {
	return minioClient
}

// ArchiveTrack mirrors a produced track file into the archive bucket.
// Archiving is best effort: failures are logged and never fail the
// operation that produced the track.
func ArchiveTrack(ctx context.Context, localPath, objectName string) {
	if minioClient == nil {
		return
	}

	info, err := os.Stat(localPath)
	if err != nil {
		logger.Warn("archive skipped, file missing",
			logger.String("path", localPath),
			logger.ErrorField(err))
		return
	}

	f, err := os.Open(localPath)
	if err != nil {
		logger.Warn("archive skipped, file unreadable",
			logger.String("path", localPath),
			logger.ErrorField(err))
		return
	}
	defer f.Close()

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = minioClient.PutObject(cctx, minioBucket, objectName, f, info.Size(), minio.PutObjectOptions{
		ContentType: "audio/wav",
	})
	if err != nil {
		logger.Warn("failed to archive track",
			logger.String("object", objectName),
			logger.ErrorField(err))
		return
	}
	logger.Debug("track archived",
		logger.String("object", objectName),
		logger.Int64("size", info.Size()))
}
