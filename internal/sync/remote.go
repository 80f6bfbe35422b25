package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/lexisync/pkg/models"
)

// Receipt statuses returned by the server for one pushed item
const (
	ReceiptAccepted  = "accepted"
	ReceiptConflict  = "conflict"
	ReceiptForbidden = "forbidden"
	ReceiptInvalid   = "invalid"
)

// PushItem is one outbox entry on the wire
type PushItem struct {
	ChangeID   string                 `json:"change_id"`
	Operation  models.ChangeOperation `json:"operation"`
	RecordID   *int64                 `json:"record_id,omitempty"`
	Payload    json.RawMessage        `json:"payload,omitempty"`
	RowVersion string                 `json:"row_version,omitempty"`
}

// PushReceipt is the server's verdict on one pushed item
type PushReceipt struct {
	ChangeID string `json:"change_id"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

// RemoteRecord is one server-side record in a pull response. Deleted
// records arrive as tombstones carrying only their identity.
type RemoteRecord struct {
	RecordID   int64           `json:"record_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RowVersion string          `json:"row_version"`
	Deleted    bool            `json:"deleted"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// RemoteStore is the server boundary the reconciler talks to. Both
// calls operate on one table for one authenticated owner.
type RemoteStore interface {
	// PushBatch submits local changes and returns one receipt per item
	PushBatch(ctx context.Context, userID int64, table string, items []PushItem) ([]PushReceipt, error)
	// FetchChanges returns records created or updated after since
	FetchChanges(ctx context.Context, userID int64, table string, since time.Time) ([]RemoteRecord, error)
}

// HTTPRemote talks to the sync API over HTTP with JSON bodies
type HTTPRemote struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPRemote creates a client for the given sync endpoint
func NewHTTPRemote(baseURL, apiKey string, timeout time.Duration) *HTTPRemote {
	return &HTTPRemote{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type pushRequest struct {
	UserID int64      `json:"user_id"`
	Items  []PushItem `json:"items"`
}

type pushResponse struct {
	Receipts []PushReceipt `json:"receipts"`
}

type pullResponse struct {
	Records []RemoteRecord `json:"records"`
}

// PushBatch submits one batch of pending changes
func (r *HTTPRemote) PushBatch(ctx context.Context, userID int64, table string, items []PushItem) ([]PushReceipt, error) {
	body, err := json.Marshal(pushRequest{UserID: userID, Items: items})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push request: %v", err)
	}

	endpoint := fmt.Sprintf("%s/api/sync/%s", r.baseURL, url.PathEscape(table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create push request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: push failed: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: push returned status %d", ErrTransport, resp.StatusCode)
	}

	var response pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: failed to decode push response: %v", ErrTransport, err)
	}
	return response.Receipts, nil
}

// FetchChanges pulls the owner's records changed after since
func (r *HTTPRemote) FetchChanges(ctx context.Context, userID int64, table string, since time.Time) ([]RemoteRecord, error) {
	endpoint := fmt.Sprintf("%s/api/sync/%s", r.baseURL, url.PathEscape(table))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %v", err)
	}

	query := req.URL.Query()
	query.Set("user_id", fmt.Sprintf("%d", userID))
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	req.URL.RawQuery = query.Encode()
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: pull failed: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: pull returned status %d", ErrTransport, resp.StatusCode)
	}

	var response pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: failed to decode pull response: %v", ErrTransport, err)
	}
	return response.Records, nil
}
