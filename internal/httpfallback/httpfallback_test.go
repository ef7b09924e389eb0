package httpfallback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/pkg/wire"
)

func TestSendReverseBatch_PostsToReverseSyncWithTokenHeader(t *testing.T) {
	var gotPath string
	var gotToken string
	var gotBody wire.ReverseSyncRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Project2Chrome-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wire.BatchAckResponse{ //nolint:errcheck
			BatchID: gotBody.BatchID,
			Results: []wire.AckResult{{EventID: "e1", Status: "applied", ResolvedKey: "note:Projects/Foo"}},
		})
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	items := []state.QueueItem{{Event: state.ReverseEvent{
		SchemaVersion: "1", BatchID: "b1", EventID: "e1", Type: "bookmark_created", BookmarkID: "99",
	}}}

	resp, err := c.SendReverseBatch(context.Background(), srv.URL, "secret-token", "b1", items)
	require.NoError(t, err)

	assert.Equal(t, "/reverse-sync", gotPath)
	assert.Equal(t, "secret-token", gotToken)
	assert.Equal(t, "b1", gotBody.BatchID)
	require.Len(t, gotBody.Events, 1)
	assert.Equal(t, "e1", gotBody.Events[0].EventID)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "applied", resp.Results[0].Status)
	assert.Equal(t, "note:Projects/Foo", resp.Results[0].ResolvedKey)
}

func TestSendReverseBatch_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	_, err := c.SendReverseBatch(context.Background(), srv.URL, "tok", "b1", nil)
	assert.Error(t, err)
}

func TestSendReverseBatch_MalformedResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(zerolog.Nop())
	_, err := c.SendReverseBatch(context.Background(), srv.URL, "tok", "b1", nil)
	assert.Error(t, err)
}
