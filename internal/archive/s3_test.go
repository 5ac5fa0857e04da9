package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/internal/testutil"
	"github.com/cvperfect/SessionService/pkg/config"
	"github.com/cvperfect/SessionService/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *mockS3) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadBucketOutput), args.Error(1)
}

func setupArchiver(t *testing.T) (*S3Archiver, *mockS3) {
	t.Helper()

	client := &mockS3{}
	a := newS3Archiver(client, "cv-archive", "sessions")
	a.now = func() time.Time { return time.Date(2025, 1, 15, 23, 30, 0, 0, time.UTC) }
	a.retry = utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return a, client
}

func TestKey(t *testing.T) {
	a, _ := setupArchiver(t)

	assert.Equal(t, "sessions/2025-01-15/sess_1.json", a.Key("sess_1", time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)))

	warsaw := time.FixedZone("CET", 3600)
	assert.Equal(t, "sessions/2025-01-15/sess_1.json", a.Key("sess_1", time.Date(2025, 1, 16, 0, 30, 0, 0, warsaw)))

	a.prefix = ""
	assert.Equal(t, "2025-01-15/sess_1.json", a.Key("sess_1", time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)))
}

func TestArchive(t *testing.T) {
	ctx := context.Background()

	t.Run("uploads the session as json", func(t *testing.T) {
		a, client := setupArchiver(t)
		session := testutil.TestSession("sess_arch")

		client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return *in.Bucket == "cv-archive" &&
				*in.Key == "sessions/2025-01-15/sess_arch.json" &&
				*in.ContentType == "application/json" &&
				in.Metadata["plan"] == "premium"
		})).Run(func(args mock.Arguments) {
			in := args.Get(1).(*s3.PutObjectInput)
			body, err := io.ReadAll(in.Body)
			require.NoError(t, err)

			var stored models.Session
			require.NoError(t, json.Unmarshal(body, &stored))
			assert.Equal(t, session.CVData, stored.CVData)
			assert.Equal(t, session.Photo, stored.Photo)
		}).Return(&s3.PutObjectOutput{}, nil).Once()

		require.NoError(t, a.Archive(ctx, session))
		client.AssertExpectations(t)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		a, client := setupArchiver(t)

		client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("503 slow down")).Once()
		client.On("PutObject", mock.Anything, mock.Anything).Return(&s3.PutObjectOutput{}, nil).Once()

		require.NoError(t, a.Archive(ctx, testutil.TestSession("sess_retry")))
		client.AssertNumberOfCalls(t, "PutObject", 2)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		a, client := setupArchiver(t)

		client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

		err := a.Archive(ctx, testutil.TestSession("sess_fail"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sess_fail")
		client.AssertNumberOfCalls(t, "PutObject", 3)
	})
}

func TestPing(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable bucket", func(t *testing.T) {
		a, client := setupArchiver(t)
		client.On("HeadBucket", mock.Anything, mock.Anything).Return(&s3.HeadBucketOutput{}, nil)

		assert.NoError(t, a.Ping(ctx))
	})

	t.Run("unreachable bucket", func(t *testing.T) {
		a, client := setupArchiver(t)
		client.On("HeadBucket", mock.Anything, mock.Anything).Return(nil, errors.New("no such bucket"))

		assert.Error(t, a.Ping(ctx))
	})
}

func TestNewS3Archiver(t *testing.T) {
	t.Run("requires a bucket", func(t *testing.T) {
		_, err := NewS3Archiver(context.Background(), &config.ArchiveConfig{})
		assert.Error(t, err)
	})
}
