package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	bucket, key, contentType string
	metadata                 map[string]string
	body                     []byte
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.uploads = append(f.uploads, upload{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
		body:        body,
	})
	return &manager.UploadOutput{Key: in.Key}, nil
}

var fixed = time.Date(2025, 3, 7, 15, 4, 5, 0, time.UTC)

func newTestArchiver(u Uploader, prefix string) *Archiver {
	a := New(u, Config{Bucket: "reports", Prefix: prefix}, zerolog.Nop())
	a.now = func() time.Time { return fixed }
	return a
}

func TestObjectKey(t *testing.T) {
	a := newTestArchiver(&fakeUploader{}, "/engine/")
	assert.Equal(t, "engine/optimization/2025/03/07/p-1/run-1.json", a.ObjectKey(KindOptimization, "p-1", "run-1", fixed))

	bare := newTestArchiver(&fakeUploader{}, "")
	assert.Equal(t, "stress-test/2025/03/07/p-2/r.json", bare.ObjectKey(KindStressTest, "p-2", "r", fixed))
}

func TestArchive(t *testing.T) {
	u := &fakeUploader{}
	a := newTestArchiver(u, "")

	key, err := a.Archive(context.Background(), KindOptimization, "p-1", "run-1", map[string]any{"status": "SOLVED"})
	require.NoError(t, err)
	assert.Equal(t, "optimization/2025/03/07/p-1/run-1.json", key)

	require.Len(t, u.uploads, 1)
	up := u.uploads[0]
	assert.Equal(t, "reports", up.bucket)
	assert.Equal(t, "application/json", up.contentType)
	assert.Equal(t, "run-1", up.metadata["run-id"])

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(up.body, &decoded))
	assert.Equal(t, "SOLVED", decoded["status"])
}

func TestArchive_Errors(t *testing.T) {
	u := &fakeUploader{err: errors.New("access denied")}
	a := newTestArchiver(u, "")

	_, err := a.Archive(context.Background(), KindStressTest, "p-1", "r", map[string]int{"a": 1})
	assert.ErrorContains(t, err, "access denied")

	_, err = a.Archive(context.Background(), KindStressTest, "p-1", "r", func() {})
	assert.ErrorContains(t, err, "failed to encode")
}

func TestSubmit_WaitsOnClose(t *testing.T) {
	u := &fakeUploader{}
	a := newTestArchiver(u, "")

	for i := 0; i < 5; i++ {
		a.Submit(KindOptimization, "p-1", string(rune('a'+i)), map[string]int{"i": i})
	}
	a.Close()

	assert.Len(t, u.uploads, 5)
}

func TestNewS3Uploader_StaticCredentials(t *testing.T) {
	up, err := NewS3Uploader(context.Background(), Config{
		Bucket:          "reports",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, up)
}

func TestNilArchiverDiscards(t *testing.T) {
	var a *Archiver
	assert.NotPanics(t, func() {
		a.Submit(KindStressTest, "pf-1", "run-1", map[string]int{"x": 1})
		a.Close()
	})
}
