package backup_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/internal/backup"
	"github.com/OldStager01/farm-bi/internal/resilience"
	"github.com/OldStager01/farm-bi/pkg/models"
)

func TestHTTPRequester_PostsRequest(t *testing.T) {
	var got backup.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"id":"b-1","status":"queued"}`))
	}))
	defer srv.Close()

	r := backup.NewHTTPRequester(backup.HTTPRequesterConfig{Endpoint: srv.URL})
	err := r.RequestBackup(context.Background(), backup.NewRequest(models.NewPeriod(2025, 1), "ana"))

	require.NoError(t, err)
	assert.Equal(t, "2025-01", got.Period)
	assert.Equal(t, "cierre_mensual", got.Reason)
	assert.Equal(t, "ana", got.RequestedBy)
}

func TestHTTPRequester_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, wantErr: backup.ErrRequestFailed},
		{name: "bad body", status: http.StatusOK, body: "not json", wantErr: backup.ErrInvalidResponse},
		{name: "empty body is fine", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			r := backup.NewHTTPRequester(backup.HTTPRequesterConfig{Endpoint: srv.URL})
			err := r.RequestBackup(context.Background(), backup.NewRequest(models.NewPeriod(2025, 1), "ana"))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type flakyRequester struct {
	calls    int32
	failures int32
}

func (f *flakyRequester) RequestBackup(context.Context, backup.Request) error {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return errors.New("unavailable")
	}
	return nil
}

func TestResilientRequester_RetriesThenSucceeds(t *testing.T) {
	inner := &flakyRequester{failures: 2}
	r := backup.NewResilientRequester(backup.ResilientRequesterConfig{
		Requester:     inner,
		MaxFailures:   3,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})

	require.NoError(t, r.RequestBackup(context.Background(), backup.Request{Period: "2025-01"}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.calls))
	assert.Equal(t, resilience.StateClosed, r.CircuitState())
}

func TestResilientRequester_OpensCircuit(t *testing.T) {
	inner := &flakyRequester{failures: 1000}
	r := backup.NewResilientRequester(backup.ResilientRequesterConfig{
		Requester:     inner,
		MaxFailures:   2,
		Timeout:       time.Hour,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	})

	ctx := context.Background()
	assert.Error(t, r.RequestBackup(ctx, backup.Request{}))
	assert.Error(t, r.RequestBackup(ctx, backup.Request{}))
	assert.ErrorIs(t, r.RequestBackup(ctx, backup.Request{}), resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))

	r.ResetCircuit()
	assert.Equal(t, resilience.StateClosed, r.CircuitState())
}

func TestNoopRequester(t *testing.T) {
	assert.NoError(t, backup.NoopRequester{}.RequestBackup(context.Background(), backup.Request{}))
}
