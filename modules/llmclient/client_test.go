package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommend_ParsesChoiceContent(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		resp := chatResponse{Choices: []struct {
			Message message `json:"message"`
		}{{Message: message{Role: "assistant", Content: "SIGNALS TO DROP\n- drop debug logs"}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, APIKey: "secret", Model: "gpt-4"})
	reply, err := c.Recommend(context.Background(), []byte(`{"traces":[]}`), []string{"policy A"})
	require.NoError(t, err)
	assert.Contains(t, reply, "SIGNALS TO DROP")
	assert.False(t, gotReq.Stream)
	assert.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
}

func TestRecommend_NonTwoXXBecomesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, APIKey: "secret"})
	_, err := c.Recommend(context.Background(), []byte(`{}`), nil)
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
}

func TestValidateConnection_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{Choices: []struct {
			Message message `json:"message"`
		}{{Message: message{Content: "ok"}}}})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	assert.NoError(t, c.ValidateConnection(context.Background()))
}

func TestValidateConnection_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	err := c.ValidateConnection(context.Background())
	require.Error(t, err)
}
