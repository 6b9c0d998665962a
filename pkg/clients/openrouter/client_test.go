package openrouter

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/groupfi/treasury-engine/internal/logger"
)

const testBaseUrl = "https://openrouter.test/api/v1"

func Test_Client(t *testing.T) {
	ctx := context.Background()

	newTestClient := func(t *testing.T) *Client {
		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
		assert.Nil(t, err)
		client := NewClient(testBaseUrl, "test-api-key", "", l)
		client.SetHttpClient(&http.Client{Transport: httpmock.DefaultTransport})
		return client
	}

	t.Run("Should return the first choice's content", func(t *testing.T) {
		httpmock.Activate()
		defer httpmock.DeactivateAndReset()

		httpmock.RegisterResponder("POST", testBaseUrl+"/chat/completions",
			httpmock.NewStringResponder(200, `{
				"choices": [
					{"message": {"role": "assistant", "content": "ape in, volume looks real"}}
				]
			}`),
		)

		client := newTestClient(t)
		note, err := client.GetCommentary(ctx, "token=T volume=125000")
		assert.Nil(t, err)
		assert.Equal(t, "ape in, volume looks real", note)
	})

	t.Run("Should error on an empty choice list", func(t *testing.T) {
		httpmock.Activate()
		defer httpmock.DeactivateAndReset()

		httpmock.RegisterResponder("POST", testBaseUrl+"/chat/completions",
			httpmock.NewStringResponder(200, `{"choices": []}`),
		)

		client := newTestClient(t)
		_, err := client.GetCommentary(ctx, "prompt")
		assert.NotNil(t, err)
	})

	t.Run("Should surface upstream failures", func(t *testing.T) {
		httpmock.Activate()
		defer httpmock.DeactivateAndReset()

		httpmock.RegisterResponder("POST", testBaseUrl+"/chat/completions",
			httpmock.NewStringResponder(429, `{"error": "rate limited"}`),
		)

		client := newTestClient(t)
		_, err := client.GetCommentary(ctx, "prompt")
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "429")
	})
}
