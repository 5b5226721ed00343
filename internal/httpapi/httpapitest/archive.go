package httpapitest

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aristath/portfolio-engine/internal/archive"
)

// RecordingUploader keeps the object keys it was asked to upload.
type RecordingUploader struct {
	mu   sync.Mutex
	keys []string
}

// Upload records the key.
func (u *RecordingUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, aws.ToString(in.Key))
	return &manager.UploadOutput{Key: in.Key}, nil
}

// Keys returns the uploaded keys.
func (u *RecordingUploader) Keys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.keys...)
}

// EnableArchive attaches an archiver backed by a recording uploader.
func (e *Env) EnableArchive() (*archive.Archiver, *RecordingUploader) {
	u := &RecordingUploader{}
	a := archive.New(u, archive.Config{Bucket: "reports", Prefix: "test"}, e.Deps.Log)
	e.Deps.Archiver = a
	return a, u
}
