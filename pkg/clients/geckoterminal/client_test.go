package geckoterminal

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/groupfi/treasury-engine/internal/logger"
)

const testBaseUrl = "https://geckoterminal.test/api/v2"

func Test_Client(t *testing.T) {
	ctx := context.Background()
	token := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1"

	newTestClient := func(t *testing.T) *Client {
		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
		assert.Nil(t, err)
		client := NewClient(testBaseUrl, l)
		client.SetHttpClient(&http.Client{Transport: httpmock.DefaultTransport})
		return client
	}

	t.Run("Should return the most liquid pool first", func(t *testing.T) {
		httpmock.Activate()
		defer httpmock.DeactivateAndReset()

		httpmock.RegisterResponder("GET", testBaseUrl+"/networks/flow-evm/tokens/"+token+"/pools",
			httpmock.NewStringResponder(200, `{
				"data": [
					{
						"id": "flow-evm_0xpool1",
						"attributes": {
							"name": "TOKEN / WFLOW",
							"base_token_price_usd": "0.0042",
							"quote_token_price_base_token": "812.5",
							"volume_usd": {"h24": "125000.50"},
							"reserve_in_usd": "420000.00"
						}
					},
					{
						"id": "flow-evm_0xpool2",
						"attributes": {"name": "TOKEN / USDC"}
					}
				]
			}`),
		)

		client := newTestClient(t)
		pool, err := client.GetTopPool(ctx, "flow-evm", token)
		assert.Nil(t, err)
		assert.Equal(t, "flow-evm_0xpool1", pool.ID)
		assert.Equal(t, "TOKEN / WFLOW", pool.Attributes.Name)
		assert.Equal(t, "812.5", pool.Attributes.QuoteTokenPriceBaseToken)
		assert.Equal(t, "125000.50", pool.Attributes.VolumeUSD.H24)
	})

	t.Run("Should report no pool for an unindexed token", func(t *testing.T) {
		httpmock.Activate()
		defer httpmock.DeactivateAndReset()

		httpmock.RegisterResponder("GET", testBaseUrl+"/networks/flow-evm/tokens/"+token+"/pools",
			httpmock.NewStringResponder(404, `{"errors": [{"status": "404"}]}`),
		)

		client := newTestClient(t)
		pool, err := client.GetTopPool(ctx, "flow-evm", token)
		assert.Nil(t, err)
		assert.Nil(t, pool)
	})
}
