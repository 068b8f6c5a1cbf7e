package recordings

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	putCalls []putCall
}

type putCall struct {
	bucket       string
	key          string
	body         []byte
	contentType  string
	cacheControl string
	acl          string
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{
		bucket:       *input.Bucket,
		key:          *input.Key,
		body:         body,
		contentType:  *input.ContentType,
		cacheControl: *input.CacheControl,
		acl:          string(input.ACL),
	})
	return &s3.PutObjectOutput{}, nil
}

func TestStore_SaveFromTwilio(t *testing.T) {
	var gotAuth bool
	twilio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "AC123" && pass == "secret"
		w.Write([]byte("RIFFfakewavbytes"))
	}))
	defer twilio.Close()

	mock := &mockS3Client{}
	store := NewStore(mock, "pgu-voicemails", "us-east-1", "AC123", "secret", nil)

	url, err := store.SaveFromTwilio(context.Background(), "CA123", twilio.URL+"/recordings/RE1")
	require.NoError(t, err)
	require.True(t, gotAuth, "expected basic auth with account credentials")

	require.Len(t, mock.putCalls, 1)
	call := mock.putCalls[0]
	assert.Equal(t, "pgu-voicemails", call.bucket)
	assert.True(t, strings.HasPrefix(call.key, "voicemails/CA123-"), "key %q", call.key)
	assert.True(t, strings.HasSuffix(call.key, ".wav"), "key %q", call.key)
	assert.Equal(t, "audio/wav", call.contentType)
	assert.Equal(t, "public, max-age=31536000", call.cacheControl)
	assert.Equal(t, "public-read", call.acl)
	assert.Equal(t, []byte("RIFFfakewavbytes"), call.body)

	assert.Equal(t, "https://pgu-voicemails.s3.us-east-1.amazonaws.com/"+call.key, url)
}

func TestStore_SaveFromTwilio_DownloadError(t *testing.T) {
	twilio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer twilio.Close()

	store := NewStore(&mockS3Client{}, "pgu-voicemails", "us-east-1", "AC123", "secret", nil)

	_, err := store.SaveFromTwilio(context.Background(), "CA123", twilio.URL+"/recordings/RE1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestStore_SaveFromTwilio_NotConfigured(t *testing.T) {
	store := NewStore(nil, "", "us-east-1", "AC123", "secret", nil)
	if store.Enabled() {
		t.Fatal("expected store without bucket to be disabled")
	}
	if _, err := store.SaveFromTwilio(context.Background(), "CA1", "https://example.com"); err == nil {
		t.Fatal("expected error when store is not configured")
	}
}
