// Package recordings copies Twilio voicemail recordings into S3 so
// clients get a stable link that outlives Twilio's retention window.
package recordings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

const maxRecordingBytes = 10 << 20 // 10 MiB, far above a 30s wav

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store downloads recordings from Twilio and persists them to S3.
type Store struct {
	s3Client   S3API
	bucket     string
	region     string
	accountSID string
	authToken  string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewStore creates a recording Store. If bucket is empty, Enabled
// reports false and SaveFromTwilio fails fast.
func NewStore(s3Client S3API, bucket, region, accountSID, authToken string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		s3Client:   s3Client,
		bucket:     bucket,
		region:     region,
		accountSID: accountSID,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Enabled returns true if recording storage is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// SaveFromTwilio fetches a recording and writes it to S3 under
// voicemails/{CallSid}-{uuid}.wav, returning the public URL.
func (s *Store) SaveFromTwilio(ctx context.Context, callSid, recordingURL string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("recordings: store not configured")
	}
	if callSid == "" || recordingURL == "" {
		return "", errors.New("recordings: callSid and recordingURL required")
	}

	audio, err := s.fetch(ctx, recordingURL)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("voicemails/%s-%s.wav", callSid, uuid.NewString())
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(audio),
		ContentType:  aws.String("audio/wav"),
		CacheControl: aws.String("public, max-age=31536000"),
		ACL:          s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("recordings: s3 put %s: %w", key, err)
	}

	publicURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	s.logger.Info("voicemail stored", "call_sid", callSid, "s3_key", key, "bytes", len(audio))
	return publicURL, nil
}

// fetch downloads the recording audio, authenticating with the Twilio
// account credentials.
func (s *Store) fetch(ctx context.Context, recordingURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("recordings: bad recording url: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recordings: download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recordings: download returned status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes))
	if err != nil {
		return nil, fmt.Errorf("recordings: read body: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("recordings: empty recording body")
	}
	return audio, nil
}
