package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HydroGuard/services/pipeline"
)

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/notifications", r.URL.Path)

		var body struct {
			Channel    string   `json:"channel"`
			Recipients []string `json:"recipients"`
			Message    string   `json:"message"`
			Priority   string   `json:"priority"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sms", body.Channel)
		assert.Equal(t, []string{"water_dept", "field_ops"}, body.Recipients)
		assert.Equal(t, "critical", body.Priority)
		assert.Contains(t, body.Message, "tank_42")

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "", 5*time.Second)
	require.NoError(t, err)

	err = c.Send(context.Background(),
		[]string{"water_dept", "field_ops"},
		"ESCALATION: tank_42 valve failure",
		pipeline.PriorityCritical)
	require.NoError(t, err)
}

func TestSendRelayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "relay overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "sms", 5*time.Second)
	require.NoError(t, err)

	err = c.Send(context.Background(), []string{"ops"}, "hello", pipeline.PriorityNormal)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrCollaboratorUnavailable)
}
