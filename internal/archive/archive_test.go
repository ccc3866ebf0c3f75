package archive

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body string
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	if in.Body != nil {
		b, _ := io.ReadAll(in.Body)
		f.body = string(b)
	}
	return &s3.PutObjectOutput{}, f.err
}

func newTestStore(t *testing.T, put *fakePutter) *Store {
	t.Helper()
	s, err := NewStore(Config{
		BucketName:      "wastemap-exports",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        "https://account.r2.cloudflarestorage.com",
		URLExpiry:       10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	s.client = put
	s.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestNewStore_RequiresConfig(t *testing.T) {
	full := Config{BucketName: "b", AccessKeyID: "k", SecretAccessKey: "s", Endpoint: "https://e"}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bucket", func(c *Config) { c.BucketName = "" }},
		{"access key", func(c *Config) { c.AccessKeyID = "" }},
		{"secret", func(c *Config) { c.SecretAccessKey = "" }},
		{"endpoint", func(c *Config) { c.Endpoint = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full
			tt.mutate(&cfg)
			if _, err := NewStore(cfg); err == nil {
				t.Error("NewStore() error = nil")
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("WAT", 3600))
	key := ObjectKey("reports", "collection_summary/../x", ".csv", at)

	if !strings.HasPrefix(key, "reports/collection_summaryx/2024/03/09/") {
		t.Errorf("key = %q", key)
	}
	if !strings.HasSuffix(key, ".csv") || strings.Contains(key, "..") {
		t.Errorf("key = %q", key)
	}
	if got := ObjectKey("reports", "%%", "", at); !strings.HasPrefix(got, "reports/export/") {
		t.Errorf("fallback key = %q", got)
	}
}

func TestStore_Put(t *testing.T) {
	put := &fakePutter{}
	s := newTestStore(t, put)

	rec, err := s.Put(context.Background(), "collection_summary", "waste_collection_summary.csv", "text/csv", []byte("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if aws.ToString(put.in.Bucket) != "wastemap-exports" || aws.ToString(put.in.Key) != rec.Key {
		t.Errorf("upload target = %s/%s, receipt key %s", aws.ToString(put.in.Bucket), aws.ToString(put.in.Key), rec.Key)
	}
	if put.body != "a,b\n1,2\n" || aws.ToInt64(put.in.ContentLength) != 8 {
		t.Errorf("uploaded %q (%d bytes)", put.body, aws.ToInt64(put.in.ContentLength))
	}
	if !strings.Contains(aws.ToString(put.in.ContentDisposition), "waste_collection_summary.csv") {
		t.Errorf("content disposition = %q", aws.ToString(put.in.ContentDisposition))
	}

	u, err := url.Parse(rec.URL)
	if err != nil {
		t.Fatalf("receipt URL %q: %v", rec.URL, err)
	}
	if !strings.Contains(u.Path, "/wastemap-exports/"+rec.Key) {
		t.Errorf("presigned path = %q", u.Path)
	}
	if u.Query().Get("X-Amz-Expires") != "600" {
		t.Errorf("X-Amz-Expires = %q, want 600", u.Query().Get("X-Amz-Expires"))
	}
	if !rec.ExpiresAt.Equal(time.Date(2024, 3, 9, 12, 10, 0, 0, time.UTC)) || rec.SizeBytes != 8 {
		t.Errorf("receipt = %+v", rec)
	}
}

func TestStore_PutErrors(t *testing.T) {
	s := newTestStore(t, &fakePutter{})
	if _, err := s.Put(context.Background(), "x", "x.csv", "text/csv", nil); !errors.Is(err, ErrEmptyExport) {
		t.Errorf("Put(empty) error = %v, want ErrEmptyExport", err)
	}

	boom := errors.New("bucket unreachable")
	s = newTestStore(t, &fakePutter{err: boom})
	if _, err := s.Put(context.Background(), "x", "x.csv", "text/csv", []byte("a")); !errors.Is(err, boom) {
		t.Errorf("Put() error = %v, want wrapped upload error", err)
	}
}
