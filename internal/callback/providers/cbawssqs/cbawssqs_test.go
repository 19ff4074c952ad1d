package cbawssqs_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/callback/providers/cbawssqs"
	"github.com/hookdeck/cbserver/internal/util/testinfra"
	"github.com/hookdeck/cbserver/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRef(endpoint string) *callback.Ref {
	return &callback.Ref{
		Type: "awssqs",
		Config: map[string]string{
			"queue_url": endpoint + "/000000000000/callbacks",
			"region":    "eu-west-1",
			"endpoint":  endpoint,
		},
		Credentials: map[string]string{"key": "test", "secret": "test"},
	}
}

func TestAWSSQSProvider_Validate(t *testing.T) {
	t.Parallel()

	provider := cbawssqs.New()

	t.Run("missing fields", func(t *testing.T) {
		err := provider.Validate(context.Background(), &callback.Ref{Type: "awssqs"})
		var validationErr *callback.ErrCallbackValidation
		require.ErrorAs(t, err, &validationErr)
		assert.Len(t, validationErr.Errors, 4)
	})

	t.Run("bad urls", func(t *testing.T) {
		ref := validRef("http://localhost:4566")
		ref.Config["queue_url"] = "callbacks"
		ref.Config["endpoint"] = "ftp://localhost"
		err := provider.Validate(context.Background(), ref)
		var validationErr *callback.ErrCallbackValidation
		require.ErrorAs(t, err, &validationErr)
		assert.ElementsMatch(t, []callback.ValidationErrorDetail{
			{Field: "config.queue_url", Type: "pattern"},
			{Field: "config.endpoint", Type: "pattern"},
		}, validationErr.Errors)
	})

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, provider.Validate(context.Background(), validRef("http://localhost:4566")))
	})
}

type fakeSQS struct {
	mu     sync.Mutex
	bodies []string
	status int
}

func (f *fakeSQS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	if f.status != 0 {
		w.WriteHeader(f.status)
		w.Write([]byte(`{"__type":"com.amazonaws.sqs#QueueDoesNotExist","message":"The specified queue does not exist."}`))
		return
	}

	var input struct {
		MessageBody string `json:"MessageBody"`
	}
	_ = json.Unmarshal(raw, &input)
	f.mu.Lock()
	f.bodies = append(f.bodies, input.MessageBody)
	f.mu.Unlock()
	w.Write([]byte(`{"MessageId":"5fea7756-0ea4-451a-a703-a558b933e274"}`))
}

func noChecksum(o *sqs.Options) {
	o.DisableMessageChecksumValidation = true
}

func TestAWSSQSCallback_Deliver(t *testing.T) {
	t.Parallel()

	fake := &fakeSQS{}
	server := httptest.NewServer(fake)
	defer server.Close()

	cb, err := cbawssqs.New(cbawssqs.WithClientOptions(noChecksum)).CreateCallback(context.Background(), validRef(server.URL))
	require.NoError(t, err)
	defer cb.Close()

	require.NoError(t, cb.Deliver(context.Background(), "hello"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.bodies, 1)
	var payload callback.Payload
	require.NoError(t, json.Unmarshal([]byte(fake.bodies[0]), &payload))
	assert.Equal(t, "hello", payload.Message)
}

func TestAWSSQSCallback_DeliverFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(&fakeSQS{status: http.StatusBadRequest})
	defer server.Close()

	cb, err := cbawssqs.New(cbawssqs.WithClientOptions(noChecksum)).CreateCallback(context.Background(), validRef(server.URL))
	require.NoError(t, err)
	defer cb.Close()

	err = cb.Deliver(context.Background(), "hello")
	var attempt *callback.ErrDeliveryAttempt
	require.ErrorAs(t, err, &attempt)
	assert.Equal(t, "awssqs", attempt.Provider)
	assert.NotEmpty(t, attempt.Code)
}

func TestClassifySQSError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "unknown"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"typed not found", &types.QueueDoesNotExist{}, "queue_not_found"},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, "access_denied"},
		{"throttled", &smithy.GenericAPIError{Code: "RequestThrottled"}, "throttled"},
		{"other api", &smithy.GenericAPIError{Code: "InvalidParameterValue"}, "api_error"},
		{"refused", errors.New("dial tcp: connect: connection refused"), "connection_refused"},
		{"other", errors.New("boom"), "request_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cbawssqs.ClassifySQSError(tt.err))
		})
	}
}

func TestAWSSQSCallback_Integration(t *testing.T) {
	endpoint := testinfra.Require(t, func(c *testinfra.Config) string { return c.LocalStackURL })
	ctx := context.Background()

	ref := validRef(endpoint)
	client := sqs.New(sqs.Options{
		Region:       "eu-west-1",
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
	queue, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String("cbserver-" + testutil.RandomString(6))})
	require.NoError(t, err)
	ref.Config["queue_url"] = *queue.QueueUrl

	cb, err := cbawssqs.New().CreateCallback(ctx, ref)
	require.NoError(t, err)
	defer cb.Close()
	require.NoError(t, cb.Deliver(ctx, "hello"))

	out, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{QueueUrl: queue.QueueUrl, WaitTimeSeconds: 2})
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	assert.Contains(t, *out.Messages[0].Body, `"message":"hello"`)
}
