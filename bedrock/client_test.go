package bedrock

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/testgap/core"
)

func staticCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDTESTGAP")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_CONFIG_FILE", "/dev/null")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/dev/null")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Region: "eu-west-1"}.withDefaults()

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, DefaultModelID, cfg.ModelID)
	assert.Equal(t, 4000, cfg.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestClient_InvokeModel(t *testing.T) {
	staticCredentials(t)

	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-sonnet",
			"content": [{"type": "text", "text": "{\"gaps\":[\"g\"]}"}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), Config{Endpoint: server.URL})
	require.NoError(t, err)
	assert.Equal(t, DefaultModelID, client.Model())

	reply, err := client.InvokeModel(context.Background(), "analyze this")
	require.NoError(t, err)

	assert.Equal(t, `{"gaps":["g"]}`, reply)
	assert.True(t, strings.HasSuffix(gotPath, "/invoke"), "path %s", gotPath)
	assert.Contains(t, gotBody, "analyze this")
	assert.Contains(t, gotBody, "bedrock-2023-05-31")
}

func TestClient_InvokeModel_StatusKinds(t *testing.T) {
	staticCredentials(t)

	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusUnauthorized, core.ErrAuthentication},
		{http.StatusForbidden, core.ErrAuthentication},
		{http.StatusBadRequest, core.ErrMalformedRequest},
		{http.StatusTooManyRequests, core.ErrServiceUnavailable},
		{http.StatusServiceUnavailable, core.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			calls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"message":"nope"}`)
			}))
			defer server.Close()

			client, err := NewClient(context.Background(), Config{Endpoint: server.URL})
			require.NoError(t, err)

			_, err = client.InvokeModel(context.Background(), "p")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, 1, calls, "no retries")
		})
	}
}

func TestClient_InvokeModel_Timeout(t *testing.T) {
	staticCredentials(t)

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(context.Background(), Config{Endpoint: server.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.InvokeModel(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrServiceUnavailable)
}

func TestClassifyError_Transport(t *testing.T) {
	err := classifyError(errors.New("dial tcp: connection refused"))

	var svcErr *core.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, core.ServiceUnavailable, svcErr.Kind)
}

func TestFirstText(t *testing.T) {
	_, err := firstText(&anthropic.Message{})
	assert.ErrorIs(t, err, core.ErrServiceUnavailable)
}
