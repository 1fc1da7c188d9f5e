package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// partSize is the multipart chunk size, the S3 minimum of 5 MiB. Bodies
// smaller than one part go up in a single PutObject.
const partSize int64 = 5 * 1024 * 1024

// Bucket reads and writes objects in the client's bucket.
type Bucket struct {
	api      *s3.Client
	name     string
	uploader *manager.Uploader
}

var (
	_ domain.BlobReader = (*Bucket)(nil)
	_ domain.BlobWriter = (*Bucket)(nil)
)

// NewBucket creates a Bucket for c.
func NewBucket(c *Client) *Bucket {
	return &Bucket{
		api:  c.api,
		name: c.bucket,
		uploader: manager.NewUploader(c.api, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
	}
}

// Put uploads data to key, switching to a multipart upload for large
// bodies.
func (b *Bucket) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

// Get opens the object at key; the caller closes it. A missing object wraps
// domain.ErrNotFound.
func (b *Bucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("s3blob: get %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	return out.Body, nil
}

// isNotFound matches the typed NoSuchKey error and the bare 404 some
// S3-compatible stores send instead.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
