package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPSender_Send(t *testing.T) {
	t.Run("successful batch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/messages/batch", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

			var req SendRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Len(t, req.Recipients, 2)

			json.NewEncoder(w).Encode(SendResponse{BatchID: "b-1", Accepted: 2})
		}))
		defer server.Close()

		sender := NewHTTPSender(server.URL, "test-key", 5*time.Second)
		resp, err := sender.Send(context.Background(), SendRequest{
			CampaignID: "c-1",
			Channel:    "SMS",
			Message:    "20% off this week",
			Recipients: []string{"+919800000001", "+919800000002"},
		})
		assert.NoError(t, err)
		assert.Equal(t, "b-1", resp.BatchID)
		assert.Equal(t, 2, resp.Accepted)
	})

	t.Run("gateway error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		defer server.Close()

		sender := NewHTTPSender(server.URL, "test-key", 5*time.Second)
		_, err := sender.Send(context.Background(), SendRequest{
			Recipients: []string{"+919800000001"},
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "batch send failed")
	})

	t.Run("no recipients", func(t *testing.T) {
		sender := NewHTTPSender("http://localhost:0", "test-key", time.Second)
		_, err := sender.Send(context.Background(), SendRequest{})
		assert.Error(t, err)
	})
}
