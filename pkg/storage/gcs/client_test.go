package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func mustGenerateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func signingClient(key *rsa.PrivateKey) *Client {
	return &Client{
		defaultBucket: "bucket",
		serviceAccount: &serviceAccountInfo{
			clientEmail: "signer@example.com",
			privateKey:  key,
		},
	}
}

func TestSignedReadURLVerifies(t *testing.T) {
	t.Parallel()

	key := mustGenerateKey(t)
	client := signingClient(key)

	object := "audio/owner/1_track.mp3"
	urlStr, err := client.SignedReadURL("bucket", object, 5*time.Minute)
	if err != nil {
		t.Fatalf("SignedReadURL returned error: %v", err)
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	if !strings.EqualFold(parsed.Host, "storage.googleapis.com") {
		t.Fatalf("unexpected host %s", parsed.Host)
	}

	values := parsed.Query()
	if got := values.Get("GoogleAccessId"); got != "signer@example.com" {
		t.Fatalf("unexpected GoogleAccessId %q", got)
	}

	expireParam := values.Get("Expires")
	if expireParam == "" {
		t.Fatal("Expires missing")
	}
	if _, err := strconv.ParseInt(expireParam, 10, 64); err != nil {
		t.Fatalf("parse expires: %v", err)
	}

	signature := values.Get("Signature")
	if signature == "" {
		t.Fatal("Signature missing")
	}

	data := []byte("GET\n\n\n" + expireParam + "\n/bucket/" + object)
	hash := sha256.Sum256(data)
	rawSig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, hash[:], rawSig); err != nil {
		t.Fatalf("verify signature: %v", err)
	}
}

func TestSignedURLBindsContentType(t *testing.T) {
	t.Parallel()

	key := mustGenerateKey(t)
	client := signingClient(key)

	urlStr, err := client.SignedURL("bucket", "covers/owner/1_art.png", "image/png", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	values := parsed.Query()

	data := []byte("PUT\n\nimage/png\n" + values.Get("Expires") + "\n/bucket/covers/owner/1_art.png")
	hash := sha256.Sum256(data)
	rawSig, err := base64.StdEncoding.DecodeString(values.Get("Signature"))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, hash[:], rawSig); err != nil {
		t.Fatalf("verify signature: %v", err)
	}
}

func TestSignedURLErrors(t *testing.T) {
	t.Parallel()

	key := mustGenerateKey(t)
	withCreds := signingClient(key)

	cases := []struct {
		name    string
		client  *Client
		object  string
		expires time.Duration
	}{
		{name: "no service account", client: &Client{defaultBucket: "bucket"}, object: "o", expires: time.Minute},
		{name: "empty object", client: withCreds, object: "", expires: time.Minute},
		{name: "non-positive expiry", client: withCreds, object: "o", expires: 0},
	}
	for _, tc := range cases {
		if _, err := tc.client.SignedReadURL("bucket", tc.object, tc.expires); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

type roundTripFunc func(*http.Request) *http.Response

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func stubTokenClient(t *testing.T, handler roundTripFunc) *Client {
	t.Helper()
	return &Client{
		defaultBucket: "bucket",
		tokenSource: &tokenSource{fetch: func(context.Context) (string, time.Time, error) {
			return "token", time.Now().Add(time.Hour), nil
		}},
		httpClient: &http.Client{Transport: handler},
	}
}

func TestUploadSendsAuthorizedPost(t *testing.T) {
	t.Parallel()

	client := stubTokenClient(t, func(req *http.Request) *http.Response {
		if req.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", req.Method)
		}
		if req.Header.Get("Authorization") != "Bearer token" {
			t.Fatalf("unexpected auth %s", req.Header.Get("Authorization"))
		}
		if req.Header.Get("Content-Type") != "audio/mpeg" {
			t.Fatalf("unexpected content type %s", req.Header.Get("Content-Type"))
		}
		if !strings.Contains(req.URL.RawQuery, "uploadType=media") {
			t.Fatalf("expected media upload, got %s", req.URL.RawQuery)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("{}")),
			Header:     http.Header{},
		}
	})

	err := client.Upload(context.Background(), "bucket", "audio/o/1_t.mp3", "audio/mpeg", strings.NewReader("bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestUploadSurfacesFailure(t *testing.T) {
	t.Parallel()

	client := stubTokenClient(t, func(req *http.Request) *http.Response {
		return &http.Response{
			StatusCode: http.StatusForbidden,
			Status:     "403 Forbidden",
			Body:       io.NopCloser(strings.NewReader("denied")),
			Header:     http.Header{},
		}
	})

	err := client.Upload(context.Background(), "bucket", "o", "audio/mpeg", strings.NewReader("bytes"))
	if err == nil {
		t.Fatal("expected upload error")
	}
}

func TestDeleteObjectTreatsNotFoundAsSuccess(t *testing.T) {
	t.Parallel()

	statuses := []int{http.StatusNoContent, http.StatusNotFound}
	for _, status := range statuses {
		client := stubTokenClient(t, func(req *http.Request) *http.Response {
			if req.Method != http.MethodDelete {
				t.Fatalf("expected DELETE, got %s", req.Method)
			}
			return &http.Response{
				StatusCode: status,
				Body:       io.NopCloser(strings.NewReader("")),
				Header:     http.Header{},
			}
		})
		if err := client.DeleteObject(context.Background(), "bucket", "audio/file.mp3"); err != nil {
			t.Fatalf("DeleteObject with status %d: %v", status, err)
		}
	}
}

func TestHeadObjectParsesMetadata(t *testing.T) {
	t.Parallel()

	client := stubTokenClient(t, func(req *http.Request) *http.Response {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"contentType":"audio/mpeg","size":"1024"}`)),
			Header:     http.Header{},
		}
	})

	info, err := client.HeadObject(context.Background(), "bucket", "audio/file.mp3")
	if err != nil {
		t.Fatalf("HeadObject: %v", err)
	}
	if info.ContentType != "audio/mpeg" || info.SizeBytes != 1024 {
		t.Fatalf("unexpected metadata: %+v", info)
	}
}

func TestTokenSourceCaches(t *testing.T) {
	t.Parallel()

	var calls int
	ts := &tokenSource{fetch: func(context.Context) (string, time.Time, error) {
		calls++
		return "tok", time.Now().Add(time.Hour), nil
	}}

	for i := 0; i < 3; i++ {
		if _, err := ts.Token(context.Background()); err != nil {
			t.Fatalf("Token: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single fetch, got %d", calls)
	}
}
