// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package memory

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/ioutil"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/comet-ml/opik-sub005/attachment"
)

const (
	opPart = "part"
	opGet  = "get"
)

// presignParams are the operation-specific values signed into a URL.
type presignParams struct {
	Op       string
	UploadID string
	Part     int
	MimeType string
	FileName string
}

// values converts the parameters to a query string, without the
// signature.
func (p presignParams) values(expires int64) url.Values {
	v := url.Values{}
	v.Set("op", p.Op)
	v.Set("expires", strconv.FormatInt(expires, 10))
	if p.UploadID != "" {
		v.Set("upload", p.UploadID)
	}
	if p.Part != 0 {
		v.Set("part", strconv.Itoa(p.Part))
	}
	if p.MimeType != "" {
		v.Set("type", p.MimeType)
	}
	if p.FileName != "" {
		v.Set("name", p.FileName)
	}
	return v
}

// escapeKey path-escapes each segment of a storage key.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// signature computes the HMAC of a key and its encoded query string.
func (bs *BlobStore) signature(key, query string) string {
	mac := hmac.New(sha256.New, bs.secret)
	_, _ = mac.Write([]byte(key))
	_, _ = mac.Write([]byte{'?'})
	_, _ = mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// sign produces a presigned URL valid for ttl.
func (bs *BlobStore) sign(key string, params presignParams, ttl time.Duration) string {
	expires := bs.clock.Now().Add(ttl).Unix()
	v := params.values(expires)
	query := v.Encode()
	v.Set("sig", bs.signature(key, query))
	return bs.baseURL + "/" + escapeKey(key) + "?" + v.Encode()
}

// verify checks the signature and expiry of a presigned request.  It
// returns the HTTP status to fail with, or 0 if the request is good.
func (bs *BlobStore) verify(key string, v url.Values) int {
	sig := v.Get("sig")
	v.Del("sig")
	expected := bs.signature(key, v.Encode())
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return http.StatusForbidden
	}
	expires, err := strconv.ParseInt(v.Get("expires"), 10, 64)
	if err != nil || bs.clock.Now().Unix() > expires {
		return http.StatusForbidden
	}
	return 0
}

// ServeHTTP serves presigned URLs.  Mount the store with the path
// prefix stripped, so that the request path is the storage key:
//
//     router.PathPrefix("/blob/").Handler(http.StripPrefix("/blob/", store))
//
// PUT to a part URL stores the part and returns its ETag header, or
// 413 if the body exceeds MaxPartSize; GET on a download URL returns
// the object.
func (bs *BlobStore) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	key := strings.TrimPrefix(req.URL.Path, "/")
	v := req.URL.Query()
	if status := bs.verify(key, v); status != 0 {
		http.Error(w, "invalid or expired signature", status)
		return
	}

	switch v.Get("op") {
	case opPart:
		if req.Method != http.MethodPut {
			w.Header().Set("Allow", http.MethodPut)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		partNumber, err := strconv.Atoi(v.Get("part"))
		if err != nil {
			http.Error(w, "bad part number", http.StatusBadRequest)
			return
		}
		limit := bs.MaxPartSize
		if limit <= 0 {
			limit = DefaultMaxPartSize
		}
		data, err := ioutil.ReadAll(http.MaxBytesReader(w, req.Body, limit))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "part is larger than the maximum part size", http.StatusRequestEntityTooLarge)
			return
		} else if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		etag, err := bs.putPart(key, v.Get("upload"), partNumber, data)
		if err == attachment.ErrNoSuchStoreUpload {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)

	case opGet:
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		bs.sem.Lock()
		obj, present := bs.objects[key]
		bs.sem.Unlock()
		if !present {
			http.NotFound(w, req)
			return
		}
		contentType := v.Get("type")
		if contentType == "" {
			contentType = obj.MimeType
		}
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		if name := v.Get("name"); name != "" {
			w.Header().Set("Content-Disposition",
				mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		}
		w.Header().Set("ETag", obj.ETag)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
		w.WriteHeader(http.StatusOK)
		if req.Method == http.MethodGet {
			_, _ = w.Write(obj.Data)
		}

	default:
		http.Error(w, "unknown operation", http.StatusBadRequest)
	}
}
