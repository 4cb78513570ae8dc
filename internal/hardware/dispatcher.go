package hardware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ErrTimeout indicates the controller did not answer within the hard
// per-call deadline. The locker may or may not have acted on the command; no
// partial state is assumed.
var ErrTimeout = errors.New("hardware timeout")

// ErrCommunication indicates the controller was reached but the exchange
// failed: transport error, non-200 status, or an explicit rejection.
var ErrCommunication = errors.New("hardware communication error")

// UnlockCommand describes an unlock dispatch.
type UnlockCommand struct {
	LockerID        int64
	CabinetID       int64
	DurationSeconds int
	TransactionID   string
	UserID          string
	Method          string
	Metadata        map[string]string
}

// LockCommand describes a lock dispatch. Forced tolerates an already-locked
// locker; AutoClose marks the command as a scheduled safety relock.
type LockCommand struct {
	LockerID      int64
	CabinetID     int64
	TransactionID string
	UserID        string
	Method        string
	Forced        bool
	AutoClose     bool
}

// Result is the controller's answer to a dispatched command.
type Result struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Dispatcher sends unlock/lock commands to the remote locker controller.
// Every call is bounded by a fixed timeout and performs no internal retries;
// retry policy belongs to the caller.
type Dispatcher interface {
	Unlock(ctx context.Context, cmd UnlockCommand) (*Result, error)
	Lock(ctx context.Context, cmd LockCommand) (*Result, error)
}

// HTTPDispatcher implements Dispatcher against the controller's HTTP API.
type HTTPDispatcher struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

// NewHTTPDispatcher creates a dispatcher for the controller at baseURL.
// timeout is the hard per-call bound (5s if nonpositive).
func NewHTTPDispatcher(baseURL string, timeout time.Duration, headers map[string]string) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDispatcher{
		baseURL: baseURL,
		headers: headers,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type wireRequest struct {
	LockerID        int64             `json:"lockerId"`
	CabinetID       int64             `json:"cabinetId"`
	DurationSeconds int               `json:"durationSeconds,omitempty"`
	TransactionID   string            `json:"transactionId"`
	UserID          string            `json:"userId,omitempty"`
	Method          string            `json:"method,omitempty"`
	Forced          bool              `json:"forced,omitempty"`
	AutoClose       bool              `json:"autoClose,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func (d *HTTPDispatcher) Unlock(ctx context.Context, cmd UnlockCommand) (*Result, error) {
	req := wireRequest{
		LockerID:        cmd.LockerID,
		CabinetID:       cmd.CabinetID,
		DurationSeconds: cmd.DurationSeconds,
		TransactionID:   cmd.TransactionID,
		UserID:          cmd.UserID,
		Method:          cmd.Method,
		Metadata:        metadataWithSource(cmd.Metadata),
	}
	return d.post(ctx, "/commands/unlock", req)
}

func (d *HTTPDispatcher) Lock(ctx context.Context, cmd LockCommand) (*Result, error) {
	req := wireRequest{
		LockerID:      cmd.LockerID,
		CabinetID:     cmd.CabinetID,
		TransactionID: cmd.TransactionID,
		UserID:        cmd.UserID,
		Method:        cmd.Method,
		Forced:        cmd.Forced,
		AutoClose:     cmd.AutoClose,
		Metadata:      metadataWithSource(nil),
	}
	return d.post(ctx, "/commands/lock", req)
}

func metadataWithSource(extra map[string]string) map[string]string {
	md := map[string]string{
		"source":    sourceName(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		md[k] = v
	}
	return md
}

func sourceName() string {
	host, err := os.Hostname()
	if err != nil {
		return "lockerd"
	}
	return "lockerd@" + host
}

func (d *HTTPDispatcher) post(ctx context.Context, path string, payload wireRequest) (*Result, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range d.headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if isTimeout(err, ctx) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrCommunication, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: controller returned status %d", ErrCommunication, resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", ErrCommunication, err)
	}

	if !result.Success {
		return &result, fmt.Errorf("%w: controller rejected command: %s", ErrCommunication, result.Error)
	}
	return &result, nil
}

func isTimeout(err error, ctx context.Context) bool {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
