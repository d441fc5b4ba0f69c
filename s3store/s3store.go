// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package s3store provides an attachment.BlobStore backed by AWS S3,
// using the multipart upload API and presigned part URLs so that
// clients upload bytes straight to the bucket.
package s3store

import (
	"context"
	"io"
	"mime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/comet-ml/opik-sub005/attachment"
)

// Client is the subset of *s3.Client the store calls.  It exists so
// tests can substitute a fake.
type Client interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient the store calls.
type Presigner interface {
	PresignUploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options configures a store built by NewFromConfig.
type Options struct {
	// Bucket is the bucket holding attachments.  Required.
	Bucket string

	// Region is the AWS region.  If empty, the SDK's default chain
	// decides.
	Region string

	// Endpoint overrides the service endpoint, for S3-compatible
	// services and local testing.
	Endpoint string

	// AccessKey and SecretKey, if both set, are used as static
	// credentials instead of the SDK default chain.
	AccessKey string
	SecretKey string

	// PathStyle forces path-style bucket addressing.
	PathStyle bool
}

// Store implements attachment.BlobStore for S3.
type Store struct {
	client    Client
	presigner Presigner
	bucket    string
}

// New creates an S3 store with the given client, presigner and bucket
// name.
func New(client Client, presigner Presigner, bucket string) *Store {
	return &Store{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
	}
}

// NewFromConfig loads the AWS SDK configuration and creates a store.
func NewFromConfig(ctx context.Context, opts Options) (*Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return New(client, s3.NewPresignClient(client), opts.Bucket), nil
}

func (s *Store) InitiateMultipart(ctx context.Context, key, mimeType string) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}
	output, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", translate(err)
	}
	return aws.ToString(output.UploadId), nil
}

func (s *Store) PresignPart(ctx context.Context, key, storeUploadID string, partNumber int, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(storeUploadID),
		PartNumber: aws.Int32(int32(partNumber)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", translate(err)
	}
	return req.URL, nil
}

func (s *Store) CompleteMultipart(ctx context.Context, key, storeUploadID string, parts []attachment.Part) (int64, error) {
	completed := make([]types.CompletedPart, len(parts))
	for i, part := range parts {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(int32(part.PartNumber)),
			ETag:       aws.String(part.ETag),
		}
	}
	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(storeUploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return 0, translate(err)
	}
	return s.Stat(ctx, key)
}

func (s *Store) Stat(ctx context.Context, key string) (int64, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, translate(err)
	}
	return aws.ToInt64(head.ContentLength), nil
}

func (s *Store) AbortMultipart(ctx context.Context, key, storeUploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(storeUploadID),
	})
	return translate(err)
}

func (s *Store) PresignGet(ctx context.Context, key, mimeType, fileName string, ttl time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if mimeType != "" {
		input.ResponseContentType = aws.String(mimeType)
	}
	if fileName != "" {
		input.ResponseContentDisposition = aws.String(
			mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	}
	req, err := s.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", translate(err)
	}
	return req.URL, nil
}

func (s *Store) Put(ctx context.Context, key, mimeType string, r io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}
	_, err := s.client.PutObject(ctx, input)
	return translate(err)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	// S3 DeleteObject doesn't return an error if the key doesn't
	// exist, which is what we want here.
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return translate(err)
}
