// Package blob stores form submission attachments in S3-compatible object
// storage and hands out short-lived presigned links for the dashboard.
package blob

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"corpathways/internal/evidence"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient connects to the object store and ensures the bucket exists.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	client := &Client{mc: mc, bucket: cfg.Bucket}
	if err := client.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// PresignedGetURL returns a time-limited download link for an object key.
func (c *Client) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Put uploads an attachment under the given key.
func (c *Client) Put(ctx context.Context, key, contentType string, size int64, body io.Reader) error {
	_, err := c.mc.PutObject(ctx, c.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// AttachmentLinkTTL bounds how long evidence links in reports stay valid.
const AttachmentLinkTTL = 15 * time.Minute

// URLResolver resolves submission attachments to presigned links for
// evidence reports. Submissions without an attachment fall back to the
// in-app route.
type URLResolver struct {
	client *Client
}

func NewURLResolver(client *Client) *URLResolver {
	return &URLResolver{client: client}
}

func (r *URLResolver) SubmissionURL(ctx context.Context, sub evidence.FormSubmission) string {
	if r == nil || r.client == nil || sub.AttachmentKey == "" {
		return ""
	}
	u, err := r.client.PresignedGetURL(ctx, sub.AttachmentKey, AttachmentLinkTTL)
	if err != nil {
		log.Printf("blob: presign attachment for submission %s: %v", sub.ID, err)
		return ""
	}
	return u
}
