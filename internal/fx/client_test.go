package fx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/fx"
)

func TestCurrentRateParsesUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"EUR","date":"2026-03-02","exchange_middle":117.1737}`))
	}))
	t.Cleanup(srv.Close)

	client := fx.NewClient(srv.URL, time.Second)
	rate, err := client.CurrentRate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "EUR", rate.Code)
	require.True(t, rate.ExchangeMiddle.Equal(decimal.RequireFromString("117.1737")))
}

func TestCurrentRateSurfacesUpstreamFailureAs503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := fx.NewClient(srv.URL, time.Second)
	_, err := client.CurrentRate(context.Background())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)
}

func TestCurrentRateRejectsZeroRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"EUR","date":"2026-03-02","exchange_middle":0}`))
	}))
	t.Cleanup(srv.Close)

	client := fx.NewClient(srv.URL, time.Second)
	_, err := client.CurrentRate(context.Background())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)
}

func TestCurrentRateRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"code":"EUR","date":"2026-03-02","exchange_middle":117.2}`))
	}))
	t.Cleanup(srv.Close)

	client := fx.NewClient(srv.URL, time.Second)
	rate, err := client.CurrentRate(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
	require.True(t, rate.ExchangeMiddle.Equal(decimal.RequireFromString("117.2")))
}
