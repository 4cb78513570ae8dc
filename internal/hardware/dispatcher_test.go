package hardware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnlockSuccess(t *testing.T) {
	var gotPath string
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{"success": true, "response": map[string]any{"door": "open"}})
	}))
	defer server.Close()

	d := NewHTTPDispatcher(server.URL, time.Second, map[string]string{"X-Api-Key": "k"})
	res, err := d.Unlock(context.Background(), UnlockCommand{
		LockerID:        42,
		CabinetID:       7,
		DurationSeconds: 30,
		TransactionID:   "tx-1",
		UserID:          "u-1",
		Method:          "qr_token",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "/commands/unlock", gotPath)
	assert.Equal(t, float64(42), gotReq["lockerId"])
	assert.Equal(t, float64(30), gotReq["durationSeconds"])
	assert.Equal(t, "tx-1", gotReq["transactionId"])

	md, ok := gotReq["metadata"].(map[string]any)
	require.True(t, ok, "metadata must carry source and timestamp")
	assert.NotEmpty(t, md["source"])
	assert.NotEmpty(t, md["timestamp"])
}

func TestLockCarriesForcedAndAutoClose(t *testing.T) {
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer server.Close()

	d := NewHTTPDispatcher(server.URL, time.Second, nil)
	_, err := d.Lock(context.Background(), LockCommand{
		LockerID:      42,
		TransactionID: "tx-2",
		Forced:        true,
		AutoClose:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, true, gotReq["forced"])
	assert.Equal(t, true, gotReq["autoClose"])
}

func TestControllerRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "door jammed"})
	}))
	defer server.Close()

	d := NewHTTPDispatcher(server.URL, time.Second, nil)
	res, err := d.Unlock(context.Background(), UnlockCommand{LockerID: 1, TransactionID: "tx-3"})
	assert.ErrorIs(t, err, ErrCommunication)
	assert.Contains(t, err.Error(), "door jammed")
	require.NotNil(t, res)
	assert.False(t, res.Success)
}

func TestNon200Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	d := NewHTTPDispatcher(server.URL, time.Second, nil)
	_, err := d.Lock(context.Background(), LockCommand{LockerID: 1, TransactionID: "tx-4"})
	assert.ErrorIs(t, err, ErrCommunication)
}

func TestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer server.Close()

	d := NewHTTPDispatcher(server.URL, 50*time.Millisecond, nil)
	start := time.Now()
	_, err := d.Unlock(context.Background(), UnlockCommand{LockerID: 1, TransactionID: "tx-5"})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 150*time.Millisecond, "call must fail at the deadline, not wait out the server")
}

func TestUnreachableController(t *testing.T) {
	// Port 1 on localhost refuses connections immediately.
	d := NewHTTPDispatcher("http://127.0.0.1:1", time.Second, nil)
	_, err := d.Unlock(context.Background(), UnlockCommand{LockerID: 1, TransactionID: "tx-6"})
	assert.ErrorIs(t, err, ErrCommunication)
	assert.NotErrorIs(t, err, ErrTimeout)
}
