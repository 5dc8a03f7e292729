package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bowerhall/roomchat/internal/logger"
)

const defaultBucket = "roomchat-media"

// Client wraps the MinIO client with the roomchat media archive layout:
// browser screenshots and exported transcripts.
type Client struct {
	mc     *minio.Client
	bucket string
}

// Config holds MinIO connection settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewClient creates a new storage client
func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}

	return &Client{mc: mc, bucket: bucket}, nil
}

// Init creates the media bucket if it doesn't exist
func (c *Client) Init(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}

	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", c.bucket, err)
		}
		logger.Info("bucket created", "bucket", c.bucket)
	}

	return nil
}

// FileInfo represents a stored file
type FileInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime string
}

// Upload stores data under name in the media bucket
func (c *Client) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := c.mc.PutObject(ctx, c.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", c.bucket, name, err)
	}

	logger.Debug("file uploaded", "bucket", c.bucket, "name", name, "size", len(data))
	return nil
}

// Download fetches a file from the media bucket
func (c *Client) Download(ctx context.Context, name string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c.bucket, name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", c.bucket, name, err)
	}

	return data, nil
}

// List lists files with an optional prefix
func (c *Client) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	var files []FileInfo

	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}

	for obj := range c.mc.ListObjects(ctx, c.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", c.bucket, obj.Err)
		}

		files = append(files, FileInfo{
			Name:    obj.Key,
			Size:    obj.Size,
			IsDir:   strings.HasSuffix(obj.Key, "/"),
			ModTime: obj.LastModified.Format("2006-01-02 15:04:05"),
		})
	}

	return files, nil
}

// ArchiveScreenshot stores one browser frame and returns its object name.
func (c *Client) ArchiveScreenshot(ctx context.Context, worker string, at time.Time, image []byte) (string, error) {
	contentType := http.DetectContentType(image)
	name := ScreenshotKey(worker, at, imageExt(contentType))
	return name, c.Upload(ctx, name, image, contentType)
}

// ArchiveTranscript stores an exported transcript and returns its object name.
func (c *Client) ArchiveTranscript(ctx context.Context, sessionKey string, at time.Time, data []byte) (string, error) {
	name := TranscriptKey(sessionKey, at)
	return name, c.Upload(ctx, name, data, "application/json")
}

// Transcripts lists the exports archived for a session. Keys are
// timestamped, so the listing is oldest first.
func (c *Client) Transcripts(ctx context.Context, sessionKey string) ([]FileInfo, error) {
	return c.List(ctx, fmt.Sprintf("transcripts/%s/", sessionKey))
}

// Bucket returns the media bucket name
func (c *Client) Bucket() string {
	return c.bucket
}

// Healthy checks if MinIO is reachable
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.mc.BucketExists(ctx, c.bucket)
	return err == nil
}

func ScreenshotKey(worker string, at time.Time, ext string) string {
	return fmt.Sprintf("screenshots/%s/%s%s", worker, at.UTC().Format("20060102T150405.000Z"), ext)
}

func TranscriptKey(sessionKey string, at time.Time) string {
	return fmt.Sprintf("transcripts/%s/%s.json", sessionKey, at.UTC().Format("20060102T150405Z"))
}

func imageExt(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
