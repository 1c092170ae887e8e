package awstest

import (
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FakeS3 keeps uploaded objects in memory keyed by object key.
type FakeS3 struct {
	mu           sync.Mutex
	Objects      map[string][]byte
	ContentTypes map[string]string
	Err          error
}

func NewFakeS3() *FakeS3 {
	return &FakeS3{Objects: map[string][]byte{}, ContentTypes: map[string]string{}}
}

func (f *FakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Objects[*in.Key] = body
	if in.ContentType != nil {
		f.ContentTypes[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}
