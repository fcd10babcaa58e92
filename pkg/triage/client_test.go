package triage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"healthguide-go/internal/config"
	"healthguide-go/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.TriageConfig{BackendURL: srv.URL + "/"}, WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
}

func TestNewClient_DefaultsBackendURL(t *testing.T) {
	c := NewClient(config.TriageConfig{}).(*httpClient)
	require.Equal(t, config.DefaultBackendURL, c.baseURL)
}

func TestCreateSession_HappyPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, sessionPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"session_id":"abc-123","message":"New session created"}`))
	})

	id, err := c.CreateSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc-123", id)
}

func TestCreateSession_EmptyID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session_id":"  "}`))
	})

	_, err := c.CreateSession(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty session_id")
}

func TestCreateSession_Non2xx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	})

	_, err := c.CreateSession(context.Background())
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.HTTPStatusCode())
	require.Equal(t, "down", statusErr.Body)
}

func TestExchange_SendsHistoryWithoutTimestamps(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, triagePath, r.URL.Path)
		var raw map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		require.Equal(t, "sess-1", raw["session_id"])
		require.Equal(t, "I have a 101°F fever", raw["message"])
		history := raw["conversation_history"].([]interface{})
		require.Len(t, history, 1)
		entry := history[0].(map[string]interface{})
		require.Equal(t, "assistant", entry["role"])
		require.NotContains(t, entry, "timestamp")
		_, _ = w.Write([]byte(`{"session_id":"sess-1","message":"Tell me more...","triage_result":null}`))
	})

	resp, err := c.Exchange(context.Background(), ExchangeRequest{
		SessionID:           "sess-1",
		Message:             "I have a 101°F fever",
		ConversationHistory: model.StripTimestamps([]model.ChatMessage{{Role: model.RoleAssistant, Content: "hi", Timestamp: time.Now()}}),
	})
	require.NoError(t, err)
	require.Equal(t, "Tell me more...", resp.Message)
	require.Nil(t, resp.TriageResult)
	require.Nil(t, resp.ConversationComplete)
}

func TestExchange_DecodesOptionalFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"message": "Call emergency services now.",
			"triage_result": {
				"triage_level": "EMERGENCY",
				"escalate": true,
				"summary": "Red flag symptom detected: seizure",
				"recommended_next_steps": ["Call emergency services immediately"],
				"red_flag_detected": true,
				"red_flag_symptom": "seizure"
			},
			"conversation_complete": false
		}`))
	})

	resp, err := c.Exchange(context.Background(), ExchangeRequest{SessionID: "s", Message: "m"})
	require.NoError(t, err)
	require.NotNil(t, resp.TriageResult)
	require.Equal(t, model.TriageEmergency, resp.TriageResult.TriageLevel)
	require.True(t, resp.TriageResult.RedFlagDetected)
	require.Equal(t, "seizure", *resp.TriageResult.RedFlagSymptom)
	require.NotNil(t, resp.ConversationComplete)
	require.False(t, *resp.ConversationComplete)
}

func TestExchange_MalformedResponses(t *testing.T) {
	cases := map[string]string{
		"not json":      `not-json`,
		"empty message": `{"message":""}`,
		"unknown level": `{"message":"ok","triage_result":{"triage_level":"MAYBE"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := c.Exchange(context.Background(), ExchangeRequest{SessionID: "s", Message: "m"})
			require.Error(t, err)
		})
	}
}

func TestExchange_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Exchange(ctx, ExchangeRequest{SessionID: "s", Message: "m"})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLookupProviders_PreservesOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, providersPath, r.URL.Path)
		var loc model.Location
		require.NoError(t, json.NewDecoder(r.Body).Decode(&loc))
		require.Equal(t, 37.7749, loc.Latitude)
		require.Equal(t, -122.4194, loc.Longitude)
		require.Equal(t, 10, loc.Radius)
		_, _ = w.Write([]byte(`[
			{"id":"3","name":"Far Clinic","type":"clinic","address":"a","phone":"p","distance":9.5},
			{"id":"1","name":"Near Pharmacy","type":"pharmacy","address":"b","phone":"q","distance":0.4}
		]`))
	})

	providers, err := c.LookupProviders(context.Background(), model.Location{Latitude: 37.7749, Longitude: -122.4194, Radius: 10})
	require.NoError(t, err)
	require.Len(t, providers, 2)
	require.Equal(t, "3", providers[0].ID)
	require.Equal(t, "1", providers[1].ID)
	require.Equal(t, 0.4, *providers[1].Distance)
}

func TestLookupProviders_NullBecomesEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	providers, err := c.LookupProviders(context.Background(), model.Location{Radius: 5})
	require.NoError(t, err)
	require.NotNil(t, providers)
	require.Empty(t, providers)
}
