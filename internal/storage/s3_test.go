package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	b, _ := io.ReadAll(params.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), "Anh.JPG")
	if !regexp.MustCompile(`^uploads/2024/03/[0-9a-f-]{36}\.jpg$`).MatchString(key) {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestS3UploaderUpload(t *testing.T) {
	fake := &fakeS3{}
	u := &S3Uploader{client: fake, bucket: "media", baseURL: "https://cdn.example.vn"}

	url, err := u.Upload(context.Background(), "uploads/2024/03/x.png", "image/png", strings.NewReader("png"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://cdn.example.vn/uploads/2024/03/x.png" {
		t.Fatalf("url = %q", url)
	}
	if *fake.input.Bucket != "media" || *fake.input.ContentType != "image/png" || fake.body != "png" {
		t.Fatalf("unexpected put %+v", fake.input)
	}

	fake.err = errors.New("denied")
	if _, err := u.Upload(context.Background(), "k", "image/png", strings.NewReader("")); err == nil {
		t.Fatal("expected the S3 error to surface")
	}
}
