package sessionmonitor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionguard/pkg/session"
	"github.com/dmitrymomot/sessionguard/pkg/sessionmonitor"
)

var serverNow = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

// fakeClient serves a scripted status and counts refreshes.
type fakeClient struct {
	mu         sync.Mutex
	status     sessionmonitor.Status
	statusErr  error
	refreshErr []error
	refreshes  int
}

func newFakeClient(left time.Duration) *fakeClient {
	return &fakeClient{status: sessionmonitor.Status{
		Status: session.Status{
			PublicID:   "pub-1",
			ExpiresAt:  serverNow.Add(left),
			ServerTime: serverNow,
		},
		CSRFToken: "csrf",
	}}
}

func (c *fakeClient) set(fn func(st *sessionmonitor.Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.status)
}

func (c *fakeClient) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusErr = err
}

func (c *fakeClient) Status(context.Context) (*sessionmonitor.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	st := c.status
	return &st, nil
}

func (c *fakeClient) Refresh(context.Context) (*sessionmonitor.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	if len(c.refreshErr) > 0 {
		err := c.refreshErr[0]
		c.refreshErr = c.refreshErr[1:]
		return nil, err
	}
	c.status.ExpiresAt = c.status.ServerTime.Add(30 * time.Minute)
	c.status.IdleWarning = false
	st := c.status
	return &st, nil
}

func (c *fakeClient) refreshCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

func TestMonitor_RefreshOnlyAfterActivity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newFakeClient(90 * time.Second)

	var refreshed atomic.Int32
	m := sessionmonitor.New(client,
		sessionmonitor.WithRefreshLead(2*time.Minute),
		sessionmonitor.OnRefreshed(func(sessionmonitor.Status) { refreshed.Add(1) }),
	)

	require.NoError(t, m.Check(ctx))
	assert.Zero(t, client.refreshCount(), "idle users are not kept alive")

	m.Touch()
	require.NoError(t, m.Check(ctx))
	assert.Equal(t, 1, client.refreshCount())
	assert.EqualValues(t, 1, refreshed.Load())

	client.set(func(st *sessionmonitor.Status) { st.ExpiresAt = serverNow.Add(time.Minute) })
	require.NoError(t, m.Check(ctx))
	assert.Equal(t, 1, client.refreshCount(), "no new activity since the last refresh")
}

func TestMonitor_NoRefreshWhenFarFromExpiry(t *testing.T) {
	t.Parallel()
	client := newFakeClient(20 * time.Minute)
	m := sessionmonitor.New(client, sessionmonitor.WithRefreshLead(2*time.Minute))

	m.Touch()
	require.NoError(t, m.Check(context.Background()))
	assert.Zero(t, client.refreshCount())
}

func TestMonitor_IdleWarningTriggersRefreshForActiveUser(t *testing.T) {
	t.Parallel()
	client := newFakeClient(5 * time.Minute)
	client.set(func(st *sessionmonitor.Status) { st.IdleWarning = true })

	var expiring atomic.Int32
	m := sessionmonitor.New(client,
		sessionmonitor.WithRefreshLead(time.Minute),
		sessionmonitor.OnExpiringSoon(func(sessionmonitor.Status) { expiring.Add(1) }),
	)

	m.Touch()
	require.NoError(t, m.Check(context.Background()))
	assert.Equal(t, 1, client.refreshCount())
	assert.Zero(t, expiring.Load(), "the refreshed status is below the warning threshold")
}

func TestMonitor_Callbacks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newFakeClient(10 * time.Minute)

	var expiring, imminent, suspicious atomic.Int32
	m := sessionmonitor.New(client,
		sessionmonitor.WithImminentThreshold(time.Minute),
		sessionmonitor.OnExpiringSoon(func(sessionmonitor.Status) { expiring.Add(1) }),
		sessionmonitor.OnIdleImminent(func(sessionmonitor.Status) { imminent.Add(1) }),
		sessionmonitor.OnSuspicious(func(st sessionmonitor.Status) {
			assert.True(t, st.IsSuspicious)
			suspicious.Add(1)
		}),
	)

	require.NoError(t, m.Check(ctx))
	assert.Zero(t, expiring.Load()+imminent.Load()+suspicious.Load())

	client.set(func(st *sessionmonitor.Status) { st.IdleWarning = true })
	require.NoError(t, m.Check(ctx))
	require.NoError(t, m.Check(ctx))
	assert.EqualValues(t, 1, expiring.Load(), "fires once per crossing")

	client.set(func(st *sessionmonitor.Status) { st.ExpiresAt = serverNow.Add(30 * time.Second) })
	require.NoError(t, m.Check(ctx))
	require.NoError(t, m.Check(ctx))
	assert.EqualValues(t, 1, imminent.Load())

	client.set(func(st *sessionmonitor.Status) { st.IsSuspicious = true })
	require.NoError(t, m.Check(ctx))
	require.NoError(t, m.Check(ctx))
	assert.EqualValues(t, 1, suspicious.Load())

	// A refresh elsewhere moves the session back under the thresholds.
	client.set(func(st *sessionmonitor.Status) {
		st.IdleWarning = false
		st.ExpiresAt = serverNow.Add(30 * time.Minute)
	})
	require.NoError(t, m.Check(ctx))
	client.set(func(st *sessionmonitor.Status) { st.IdleWarning = true })
	require.NoError(t, m.Check(ctx))
	assert.EqualValues(t, 2, expiring.Load(), "re-armed after leaving the warning window")
	assert.EqualValues(t, 1, suspicious.Load(), "suspicion is reported once per session")
}

func TestMonitor_RefreshRetriesUnavailable(t *testing.T) {
	t.Parallel()
	client := newFakeClient(time.Minute)
	client.refreshErr = []error{sessionmonitor.ErrUnavailable}

	m := sessionmonitor.New(client, sessionmonitor.WithRefreshRetry(3, time.Millisecond))
	m.Touch()
	require.NoError(t, m.Check(context.Background()))
	assert.Equal(t, 2, client.refreshCount())
}

func TestMonitor_RefreshDoesNotRetrySessionEnd(t *testing.T) {
	t.Parallel()
	client := newFakeClient(time.Minute)
	client.refreshErr = []error{sessionmonitor.ErrSessionEnded}

	var expired atomic.Int32
	m := sessionmonitor.New(client,
		sessionmonitor.WithRefreshRetry(3, time.Millisecond),
		sessionmonitor.OnExpired(func() { expired.Add(1) }),
	)
	m.Touch()
	err := m.Check(context.Background())
	assert.ErrorIs(t, err, sessionmonitor.ErrSessionEnded)
	assert.Equal(t, 1, client.refreshCount())
	assert.EqualValues(t, 1, expired.Load())
}

func TestMonitor_Run(t *testing.T) {
	t.Parallel()

	t.Run("stops when the session ends", func(t *testing.T) {
		t.Parallel()
		client := newFakeClient(10 * time.Minute)

		var expired atomic.Int32
		m := sessionmonitor.New(client,
			sessionmonitor.WithPollInterval(5*time.Millisecond),
			sessionmonitor.OnExpired(func() { expired.Add(1) }),
		)

		done := make(chan error, 1)
		go func() { done <- m.Run(context.Background()) }()

		time.Sleep(20 * time.Millisecond)
		client.fail(sessionmonitor.ErrSessionEnded)

		select {
		case err := <-done:
			assert.ErrorIs(t, err, sessionmonitor.ErrSessionEnded)
		case <-time.After(2 * time.Second):
			require.FailNow(t, "monitor did not stop")
		}
		assert.EqualValues(t, 1, expired.Load())
	})

	t.Run("keeps polling through outages", func(t *testing.T) {
		t.Parallel()
		client := newFakeClient(10 * time.Minute)
		client.fail(errors.Join(sessionmonitor.ErrUnavailable, errors.New("connection refused")))

		var outages atomic.Int32
		m := sessionmonitor.New(client,
			sessionmonitor.WithPollInterval(5*time.Millisecond),
			sessionmonitor.OnUnavailable(func(error) { outages.Add(1) }),
		)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- m.Run(ctx) }()

		require.Eventually(t, func() bool { return outages.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			require.FailNow(t, "monitor did not stop")
		}
	})
}
