package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPRunner_PostsReportAndDecodes(t *testing.T) {
	var got struct {
		ReportName string         `json:"report_name"`
		Filters    map[string]any `json:"filters"`
	}
	var auth, path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"columns":[{"fieldname":"amt","label":"Amount","fieldtype":"Currency"}],"result":[[10],[20]]}}`))
	}))
	defer srv.Close()

	h := &HTTPRunner{BaseURL: srv.URL + "/", Token: "key:secret", Client: srv.Client()}
	res, err := h.Run(context.Background(), "Sales Register", Filters{"company": "ACME"})
	require.NoError(t, err)

	require.Equal(t, "/api/method/"+DefaultMethod, path)
	require.Equal(t, "token key:secret", auth)
	require.Equal(t, "Sales Register", got.ReportName)
	require.Equal(t, "ACME", got.Filters["company"])
	require.Len(t, res.Columns, 1)
	require.Equal(t, TypeNumeric, res.Columns[0].Type)
	require.Len(t, res.Rows, 2)
}

func TestHTTPRunner_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"message":{"columns":["A"],"result":[["x"]]}}`))
	}))
	defer srv.Close()

	h := &HTTPRunner{BaseURL: srv.URL, Method: "custom.run", MaxTries: 5, MaxElapsed: 10 * time.Second, Client: srv.Client()}
	res, err := h.Run(context.Background(), "R", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.EqualValues(t, 3, calls.Load())
}

func TestHTTPRunner_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	h := &HTTPRunner{BaseURL: srv.URL, MaxTries: 5, Client: srv.Client()}
	_, err := h.Run(context.Background(), "R", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
	require.EqualValues(t, 1, calls.Load())
}

func TestHTTPRunner_EmptyReportID(t *testing.T) {
	h := &HTTPRunner{BaseURL: "http://127.0.0.1:0"}
	_, err := h.Run(context.Background(), "", nil)
	require.Error(t, err)
}
