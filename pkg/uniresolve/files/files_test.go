package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/config"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int64
		wantErr  bool
	}{
		{"pdf", "report.pdf", 1024, false},
		{"upper case extension", "PHOTO.JPG", 1024, false},
		{"docx", "notes.docx", 1024, false},
		{"exactly at limit", "scan.png", MaxFileSize, false},
		{"over limit", "scan.png", MaxFileSize + 1, true},
		{"executable", "virus.exe", 10, true},
		{"no extension", "README", 10, true},
		{"empty name", "", 10, true},
		{"empty file", "a.txt", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.filename, tt.size)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *apperr.ValidationError
			assert.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
		})
	}
}

func TestNewFilenameAndKey(t *testing.T) {
	a := NewFilename("Evidence.PDF")
	b := NewFilename("Evidence.PDF")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, ".pdf"))
	assert.Len(t, a, 32+len(".pdf"))
	assert.Equal(t, "complaint_7/"+a, Key(7, a))
}

func TestSniff(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

	mime, ok, r, err := Sniff(bytes.NewReader(png), "photo.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.True(t, ok)
	all, _ := io.ReadAll(r)
	assert.Equal(t, png, all, "sniffing must not consume the content")

	_, ok, _, err = Sniff(bytes.NewReader(png), "photo.jpg")
	require.NoError(t, err)
	assert.True(t, ok, "any image type is accepted for image extensions")

	_, ok, _, err = Sniff(strings.NewReader("just some text"), "notes.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, _, err = Sniff(strings.NewReader("just some text"), "fake.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.Save(ctx, Key(1, "a.txt"), strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "complaint_1/a.txt", path)

	rc, err := store.Open(ctx, path)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello", string(data))

	deleted, err := store.Delete(ctx, path)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, path)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "../outside.txt", strings.NewReader("x"), 1, "")
	assert.Error(t, err)
	_, err = store.Open(context.Background(), "/etc/passwd")
	assert.Error(t, err)
}

type fakeObjects struct {
	objects map[string][]byte
	types   map[string]string
	fail    error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := newFakeObjects()
	store := NewS3StoreWithClient(fake, "attachments")

	path, err := store.Save(ctx, "complaint_3/x.pdf", strings.NewReader("%PDF-1.4"), 8, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "complaint_3/x.pdf", path)
	assert.Equal(t, "application/pdf", fake.types[path])

	rc, err := store.Open(ctx, path)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF-1.4", string(data))

	ok, err := store.Delete(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, fake.objects)

	_, err = store.Open(ctx, path)
	assert.Error(t, err)
}

func TestS3StoreSaveFailure(t *testing.T) {
	fake := newFakeObjects()
	fake.fail = errors.New("bucket unavailable")
	store := NewS3StoreWithClient(fake, "attachments")

	_, err := store.Save(context.Background(), "k", strings.NewReader("x"), 1, "")
	assert.ErrorIs(t, err, fake.fail)
}

func TestNewStore(t *testing.T) {
	store, err := New(config.StorageConfig{Driver: "local", UploadDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	store, err = New(config.StorageConfig{Driver: "s3", S3Bucket: "b", S3Region: "auto", S3Endpoint: "http://localhost:9000"})
	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, store)

	_, err = New(config.StorageConfig{Driver: "ftp"})
	assert.Error(t, err)
}
