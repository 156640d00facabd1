package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeydtaylor/steeze-connect/pkg/xsenv"
)

func TestPreflight_RetriesUntilTokenIssued(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)

	var calls atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		p.serveToken(w, r)
	}))
	t.Cleanup(flaky.Close)
	p.identity.Close()
	p.identity = flaky

	err := p.client().Preflight(context.Background(), 10*time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestPreflight_MissingBindingFailsFast(t *testing.T) {
	t.Parallel()

	c := New(WithServices(func() (*xsenv.Services, error) { return nil, xsenv.ErrNoServices }))
	start := time.Now()
	err := c.Preflight(context.Background(), 10*time.Second)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPreflight_GivesUpAfterBudget(t *testing.T) {
	t.Parallel()
	p := newPlatform(t)
	p.tokenStatus = http.StatusInternalServerError

	err := p.client().Preflight(context.Background(), 600*time.Millisecond)
	require.ErrorIs(t, err, ErrTokenAcquisition)
	assert.GreaterOrEqual(t, p.tokenCalls.Load(), int32(2))
}
