// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/satori/go.uuid"

	"github.com/comet-ml/opik-sub005/attachment"
)

// DefaultMaxPartSize is S3's limit on the size of one part.
const DefaultMaxPartSize = 5 << 30

// object is one stored blob.
type object struct {
	Data     []byte
	MimeType string
	ETag     string
}

// multipart is an in-progress multipart upload.
type multipart struct {
	Key      string
	MimeType string
	Parts    map[int]object
}

// BlobStore is an in-memory attachment.BlobStore.  Presigned URLs
// point at BaseURL and are served by the store's own http.Handler
// (see ServeHTTP), so a client can PUT parts and GET objects exactly
// as it would against a real object store.
type BlobStore struct {
	// MaxPartSize is the largest part its handler accepts in one
	// PUT.  NewBlobStore sets it to DefaultMaxPartSize.
	MaxPartSize int64

	baseURL string
	secret  []byte
	clock   clock.Clock

	sem     sync.Mutex
	objects map[string]object
	uploads map[string]*multipart
}

// NewBlobStore creates an in-memory blob store.  baseURL is the
// externally visible URL its handler is mounted at, for instance
// "http://localhost:8080/blob".  secret signs presigned URLs; if it is
// empty a random secret is generated.
func NewBlobStore(baseURL string, secret []byte) *BlobStore {
	return NewBlobStoreWithClock(baseURL, secret, clock.New())
}

// NewBlobStoreWithClock creates an in-memory blob store using an
// explicit time source for presigned URL expiry.  See NewBlobStore()
// for further details.
func NewBlobStoreWithClock(baseURL string, secret []byte, clk clock.Clock) *BlobStore {
	if len(secret) == 0 {
		secret = uuid.NewV4().Bytes()
	}
	return &BlobStore{
		MaxPartSize: DefaultMaxPartSize,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		secret:      secret,
		clock:       clk,
		objects:     make(map[string]object),
		uploads:     make(map[string]*multipart),
	}
}

// etagOf computes an S3-style quoted MD5 ETag.
func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return "\"" + hex.EncodeToString(sum[:]) + "\""
}

// unquote strips the quotes from an ETag, since clients are not
// consistent about keeping them.
func unquote(etag string) string {
	return strings.Trim(strings.TrimSpace(etag), "\"")
}

func (bs *BlobStore) InitiateMultipart(ctx context.Context, key, mimeType string) (string, error) {
	bs.sem.Lock()
	defer bs.sem.Unlock()

	id := uuid.NewV4().String()
	bs.uploads[id] = &multipart{
		Key:      key,
		MimeType: mimeType,
		Parts:    make(map[int]object),
	}
	return id, nil
}

func (bs *BlobStore) PresignPart(ctx context.Context, key, storeUploadID string, partNumber int, ttl time.Duration) (string, error) {
	if partNumber < 1 || partNumber > attachment.MaxParts {
		return "", fmt.Errorf("part number %d out of range", partNumber)
	}
	bs.sem.Lock()
	upload, present := bs.uploads[storeUploadID]
	bs.sem.Unlock()
	if !present || upload.Key != key {
		return "", attachment.ErrNoSuchStoreUpload
	}
	return bs.sign(key, presignParams{
		Op:       opPart,
		UploadID: storeUploadID,
		Part:     partNumber,
	}, ttl), nil
}

func (bs *BlobStore) CompleteMultipart(ctx context.Context, key, storeUploadID string, parts []attachment.Part) (int64, error) {
	bs.sem.Lock()
	defer bs.sem.Unlock()

	upload, present := bs.uploads[storeUploadID]
	if !present || upload.Key != key {
		return 0, attachment.ErrNoSuchStoreUpload
	}
	if len(parts) == 0 {
		return 0, attachment.ErrPartsRejected
	}

	var (
		data bytes.Buffer
		sums []byte
	)
	for i, part := range parts {
		if part.PartNumber != i+1 {
			return 0, attachment.ErrPartsRejected
		}
		stored, present := upload.Parts[part.PartNumber]
		if !present || unquote(stored.ETag) != unquote(part.ETag) {
			return 0, attachment.ErrPartsRejected
		}
		data.Write(stored.Data)
		sum := md5.Sum(stored.Data)
		sums = append(sums, sum[:]...)
	}

	total := md5.Sum(sums)
	bs.objects[key] = object{
		Data:     data.Bytes(),
		MimeType: upload.MimeType,
		ETag:     fmt.Sprintf("\"%s-%d\"", hex.EncodeToString(total[:]), len(parts)),
	}
	delete(bs.uploads, storeUploadID)
	return int64(data.Len()), nil
}

func (bs *BlobStore) Stat(ctx context.Context, key string) (int64, error) {
	bs.sem.Lock()
	defer bs.sem.Unlock()

	obj, present := bs.objects[key]
	if !present {
		return 0, attachment.ErrNoSuchObject
	}
	return int64(len(obj.Data)), nil
}

func (bs *BlobStore) AbortMultipart(ctx context.Context, key, storeUploadID string) error {
	bs.sem.Lock()
	defer bs.sem.Unlock()

	upload, present := bs.uploads[storeUploadID]
	if !present || upload.Key != key {
		return attachment.ErrNoSuchStoreUpload
	}
	delete(bs.uploads, storeUploadID)
	return nil
}

func (bs *BlobStore) PresignGet(ctx context.Context, key, mimeType, fileName string, ttl time.Duration) (string, error) {
	return bs.sign(key, presignParams{
		Op:       opGet,
		MimeType: mimeType,
		FileName: fileName,
	}, ttl), nil
}

func (bs *BlobStore) Put(ctx context.Context, key, mimeType string, r io.Reader, size int64) error {
	data, err := ioutil.ReadAll(io.LimitReader(r, size+1))
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("expected %d bytes, got %d", size, len(data))
	}

	bs.sem.Lock()
	defer bs.sem.Unlock()
	bs.objects[key] = object{Data: data, MimeType: mimeType, ETag: etagOf(data)}
	return nil
}

func (bs *BlobStore) Delete(ctx context.Context, key string) error {
	bs.sem.Lock()
	defer bs.sem.Unlock()
	delete(bs.objects, key)
	return nil
}

// putPart stores one part of a multipart upload and returns its ETag.
func (bs *BlobStore) putPart(key, storeUploadID string, partNumber int, data []byte) (string, error) {
	bs.sem.Lock()
	defer bs.sem.Unlock()

	upload, present := bs.uploads[storeUploadID]
	if !present || upload.Key != key {
		return "", attachment.ErrNoSuchStoreUpload
	}
	part := object{Data: data, ETag: etagOf(data)}
	upload.Parts[partNumber] = part
	return part.ETag, nil
}

// Object returns the contents and MIME type of a stored object.
func (bs *BlobStore) Object(key string) ([]byte, string, bool) {
	bs.sem.Lock()
	defer bs.sem.Unlock()

	obj, present := bs.objects[key]
	return obj.Data, obj.MimeType, present
}

// Keys returns the keys of all stored objects, sorted.
func (bs *BlobStore) Keys() []string {
	bs.sem.Lock()
	defer bs.sem.Unlock()

	keys := make([]string, 0, len(bs.objects))
	for key := range bs.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// PendingUploads returns the number of multipart uploads that have
// been initiated but neither completed nor aborted.
func (bs *BlobStore) PendingUploads() int {
	bs.sem.Lock()
	defer bs.sem.Unlock()
	return len(bs.uploads)
}
