package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/lexisync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRemotePushBatch(t *testing.T) {
	var gotRequest pushRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sync/words", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		json.NewEncoder(w).Encode(pushResponse{Receipts: []PushReceipt{
			{ChangeID: "c1", Status: ReceiptAccepted},
			{ChangeID: "c2", Status: ReceiptConflict, Message: "row version mismatch"},
		}})
	}))
	defer server.Close()

	remote := NewHTTPRemote(server.URL, "test-key", 5*time.Second)
	receipts, err := remote.PushBatch(context.Background(), 7, "words", []PushItem{
		{ChangeID: "c1", Operation: models.OpCreate, Payload: json.RawMessage(`{"term":"apple"}`)},
		{ChangeID: "c2", Operation: models.OpUpdate, RowVersion: "v1"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7), gotRequest.UserID)
	require.Len(t, gotRequest.Items, 2)
	assert.Equal(t, "c1", gotRequest.Items[0].ChangeID)

	require.Len(t, receipts, 2)
	assert.Equal(t, ReceiptAccepted, receipts[0].Status)
	assert.Equal(t, ReceiptConflict, receipts[1].Status)
}

func TestHTTPRemoteFetchChanges(t *testing.T) {
	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/sync/learning_progress", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("user_id"))
		assert.Equal(t, since.Format(time.RFC3339Nano), r.URL.Query().Get("since"))

		json.NewEncoder(w).Encode(pullResponse{Records: []RemoteRecord{
			{RecordID: 3, RowVersion: "v2", UpdatedAt: since.Add(time.Hour)},
		}})
	}))
	defer server.Close()

	remote := NewHTTPRemote(server.URL, "", 5*time.Second)
	records, err := remote.FetchChanges(context.Background(), 42, "learning_progress", since)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(3), records[0].RecordID)
}

func TestHTTPRemoteFetchChangesOmitsZeroSince(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["since"]
		assert.False(t, present, "zero since means full fetch")
		json.NewEncoder(w).Encode(pullResponse{})
	}))
	defer server.Close()

	remote := NewHTTPRemote(server.URL, "", 5*time.Second)
	_, err := remote.FetchChanges(context.Background(), 1, "words", time.Time{})
	require.NoError(t, err)
}

func TestHTTPRemoteServerErrorIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	remote := NewHTTPRemote(server.URL, "", 5*time.Second)

	_, err := remote.PushBatch(context.Background(), 1, "words", nil)
	assert.True(t, errors.Is(err, ErrTransport))

	_, err = remote.FetchChanges(context.Background(), 1, "words", time.Time{})
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestHTTPRemoteUnreachableIsTransport(t *testing.T) {
	remote := NewHTTPRemote("http://127.0.0.1:1", "", time.Second)

	_, err := remote.PushBatch(context.Background(), 1, "words", nil)
	assert.True(t, errors.Is(err, ErrTransport))
}
