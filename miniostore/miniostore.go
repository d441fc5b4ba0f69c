// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package miniostore provides an attachment.BlobStore for MinIO and
// other S3-compatible servers, using minio-go's low-level multipart
// API.
package miniostore

import (
	"context"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/comet-ml/opik-sub005/attachment"
)

// Options configures a store built by Dial.
type Options struct {
	// Endpoint is the host:port of the server.
	Endpoint string

	// Bucket is the bucket holding attachments.  Required.
	Bucket string

	AccessKey string
	SecretKey string
	Region    string

	// Secure selects HTTPS.
	Secure bool
}

// Store implements attachment.BlobStore for MinIO.
type Store struct {
	core   *minio.Core
	bucket string
}

// New creates a MinIO store with the given client and bucket name.
func New(core *minio.Core, bucket string) *Store {
	return &Store{
		core:   core,
		bucket: bucket,
	}
}

// Dial connects to a MinIO server and creates a store.  The bucket
// is not created.
func Dial(opts Options) (*Store, error) {
	core, err := minio.NewCore(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}
	return New(core, opts.Bucket), nil
}

func (s *Store) InitiateMultipart(ctx context.Context, key, mimeType string) (string, error) {
	id, err := s.core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{
		ContentType: mimeType,
	})
	return id, translate(err)
}

func (s *Store) PresignPart(ctx context.Context, key, storeUploadID string, partNumber int, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("partNumber", strconv.Itoa(partNumber))
	params.Set("uploadId", storeUploadID)
	u, err := s.core.Presign(ctx, http.MethodPut, s.bucket, key, ttl, params)
	if err != nil {
		return "", translate(err)
	}
	return u.String(), nil
}

func (s *Store) CompleteMultipart(ctx context.Context, key, storeUploadID string, parts []attachment.Part) (int64, error) {
	completed := make([]minio.CompletePart, len(parts))
	for i, part := range parts {
		completed[i] = minio.CompletePart{
			PartNumber: part.PartNumber,
			ETag:       part.ETag,
		}
	}
	_, err := s.core.CompleteMultipartUpload(ctx, s.bucket, key, storeUploadID, completed, minio.PutObjectOptions{})
	if err != nil {
		return 0, translate(err)
	}
	return s.Stat(ctx, key)
}

func (s *Store) Stat(ctx context.Context, key string) (int64, error) {
	info, err := s.core.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, translate(err)
	}
	return info.Size, nil
}

func (s *Store) AbortMultipart(ctx context.Context, key, storeUploadID string) error {
	return translate(s.core.AbortMultipartUpload(ctx, s.bucket, key, storeUploadID))
}

func (s *Store) PresignGet(ctx context.Context, key, mimeType, fileName string, ttl time.Duration) (string, error) {
	params := url.Values{}
	if mimeType != "" {
		params.Set("response-content-type", mimeType)
	}
	if fileName != "" {
		params.Set("response-content-disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	}
	u, err := s.core.PresignedGetObject(ctx, s.bucket, key, ttl, params)
	if err != nil {
		return "", translate(err)
	}
	return u.String(), nil
}

func (s *Store) Put(ctx context.Context, key, mimeType string, r io.Reader, size int64) error {
	_, err := s.core.Client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: mimeType,
	})
	return translate(err)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return translate(s.core.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}))
}

// translate maps a minio-go error to the attachment error vocabulary.
// nil stays nil.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchUpload":
		return attachment.ErrNoSuchStoreUpload
	case "NoSuchKey":
		return attachment.ErrNoSuchObject
	case "InvalidPart", "InvalidPartOrder", "EntityTooSmall":
		return attachment.ErrPartsRejected
	case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout", "XMinioServerNotInitialized":
		return attachment.TransientError{Err: err}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return attachment.TransientError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return attachment.TransientError{Err: err}
	}
	return err
}
