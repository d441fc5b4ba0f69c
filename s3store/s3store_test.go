// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package s3store

import (
	"context"
	"errors"
	"io/ioutil"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comet-ml/opik-sub005/attachment"
)

// fakeClient records calls and returns canned results.
type fakeClient struct {
	created   *s3.CreateMultipartUploadInput
	completed *s3.CompleteMultipartUploadInput
	aborted   *s3.AbortMultipartUploadInput
	put       *s3.PutObjectInput
	putBody   string
	deleted   *s3.DeleteObjectInput
	size      int64
	err       error
	headErr   error
}

func (f *fakeClient) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.created = params
	if f.err != nil {
		return nil, f.err
	}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("store-upload")}, nil
}

func (f *fakeClient) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.completed = params
	if f.err != nil {
		return nil, f.err
	}
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeClient) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.aborted = params
	return &s3.AbortMultipartUploadOutput{}, f.err
}

func (f *fakeClient) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(f.size)}, nil
}

func (f *fakeClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = params
	data, err := ioutil.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.putBody = string(data)
	return &s3.PutObjectOutput{}, f.err
}

func (f *fakeClient) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = params
	return &s3.DeleteObjectOutput{}, f.err
}

// fakePresigner builds predictable URLs.
type fakePresigner struct {
	expires time.Duration
	get     *s3.GetObjectInput
}

func (f *fakePresigner) options(optFns []func(*s3.PresignOptions)) {
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
}

func (f *fakePresigner) PresignUploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.options(optFns)
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.example/" + aws.ToString(params.Key) + "?partNumber=" + string(rune('0'+aws.ToInt32(params.PartNumber))),
		Method: http.MethodPut,
	}, nil
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.options(optFns)
	f.get = params
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.example/" + aws.ToString(params.Key),
		Method: http.MethodGet,
	}, nil
}

func TestMultipartFlow(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{size: 11}
	presigner := &fakePresigner{}
	store := New(client, presigner, "bucket")

	id, err := store.InitiateMultipart(ctx, "k", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "store-upload", id)
	assert.Equal(t, "bucket", aws.ToString(client.created.Bucket))
	assert.Equal(t, "text/plain", aws.ToString(client.created.ContentType))

	url, err := store.PresignPart(ctx, "k", id, 2, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example/k?partNumber=2", url)
	assert.Equal(t, 15*time.Minute, presigner.expires)

	size, err := store.CompleteMultipart(ctx, "k", id, []attachment.Part{
		{PartNumber: 1, ETag: "\"a\""},
		{PartNumber: 2, ETag: "\"b\""},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)
	assert.Equal(t, "store-upload", aws.ToString(client.completed.UploadId))
	if assert.Len(t, client.completed.MultipartUpload.Parts, 2) {
		assert.Equal(t, int32(2), aws.ToInt32(client.completed.MultipartUpload.Parts[1].PartNumber))
		assert.Equal(t, "\"b\"", aws.ToString(client.completed.MultipartUpload.Parts[1].ETag))
	}

	require.NoError(t, store.AbortMultipart(ctx, "k", id))
	assert.Equal(t, "store-upload", aws.ToString(client.aborted.UploadId))
}

func TestStat(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{size: 7}
	store := New(client, &fakePresigner{}, "bucket")
	size, err := store.Stat(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(7), size)

	client.headErr = &types.NotFound{}
	_, err = store.Stat(ctx, "k")
	assert.Equal(t, attachment.ErrNoSuchObject, err)

	// A committed upload whose size lookup fails is still retryable
	client.headErr = statusError(503)
	_, err = store.CompleteMultipart(ctx, "k", "u", []attachment.Part{{PartNumber: 1, ETag: "x"}})
	assert.True(t, attachment.IsTransient(err))
	assert.NotNil(t, client.completed)
}

func TestPresignGet(t *testing.T) {
	presigner := &fakePresigner{}
	store := New(&fakeClient{}, presigner, "bucket")
	url, err := store.PresignGet(context.Background(), "k", "image/png", "cat.png", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example/k", url)
	assert.Equal(t, time.Minute, presigner.expires)
	assert.Equal(t, "image/png", aws.ToString(presigner.get.ResponseContentType))
	assert.Equal(t, "attachment; filename=cat.png", aws.ToString(presigner.get.ResponseContentDisposition))
}

func TestPutDelete(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	store := New(client, &fakePresigner{}, "bucket")

	require.NoError(t, store.Put(ctx, "k", "text/plain", strings.NewReader("abc"), 3))
	assert.Equal(t, "abc", client.putBody)
	assert.Equal(t, int64(3), aws.ToInt64(client.put.ContentLength))

	require.NoError(t, store.Delete(ctx, "k"))
	assert.Equal(t, "k", aws.ToString(client.deleted.Key))
}

// statusError builds an SDK-shaped response error.
func statusError(status int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
		Err:      errors.New("boom"),
	}
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))

	assert.Equal(t, attachment.ErrNoSuchStoreUpload, translate(&types.NoSuchUpload{}))
	assert.Equal(t, attachment.ErrNoSuchStoreUpload,
		translate(&smithy.GenericAPIError{Code: "NoSuchUpload"}))
	assert.Equal(t, attachment.ErrNoSuchObject, translate(&types.NotFound{}))
	assert.Equal(t, attachment.ErrNoSuchObject, translate(&types.NoSuchKey{}))
	assert.Equal(t, attachment.ErrPartsRejected,
		translate(&smithy.GenericAPIError{Code: "InvalidPart"}))
	assert.Equal(t, attachment.ErrPartsRejected,
		translate(&smithy.GenericAPIError{Code: "InvalidPartOrder"}))
	assert.True(t, attachment.IsTransient(translate(&smithy.GenericAPIError{Code: "SlowDown"})))

	assert.True(t, attachment.IsTransient(translate(statusError(503))))
	assert.True(t, attachment.IsTransient(translate(statusError(429))))
	assert.False(t, attachment.IsTransient(translate(statusError(403))))

	assert.True(t, attachment.IsTransient(translate(&net.OpError{Op: "dial", Err: errors.New("refused")})))

	assert.Equal(t, context.Canceled, translate(context.Canceled))
	plain := errors.New("plain")
	assert.Equal(t, plain, translate(plain))
}

func TestTranslateThroughClient(t *testing.T) {
	store := New(&fakeClient{err: &smithy.GenericAPIError{Code: "InvalidPart"}}, &fakePresigner{}, "bucket")
	_, err := store.CompleteMultipart(context.Background(), "k", "u", []attachment.Part{{PartNumber: 1, ETag: "x"}})
	assert.Equal(t, attachment.ErrPartsRejected, err)

	store = New(&fakeClient{err: statusError(500)}, &fakePresigner{}, "bucket")
	_, err = store.InitiateMultipart(context.Background(), "k", "")
	assert.True(t, attachment.IsTransient(err))
}
