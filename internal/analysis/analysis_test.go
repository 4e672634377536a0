package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	outputs map[string]string
	err     error
	calls   []string
}

func (r *fakeRunner) Run(ctx context.Context, task string, image []byte) (string, error) {
	r.calls = append(r.calls, task)
	if r.err != nil {
		return "", r.err
	}
	return r.outputs[task], nil
}

func TestLocalBackendRunsTasksInOrder(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"caption": `a dog in a park`,
		"tags":    `["dog","park"]`,
	}}
	b := NewLocalBackend(runner, []string{"caption", "tags"}, testLogger())

	out, err := b.Analyze(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"caption", "tags"}, runner.calls)
	assert.JSONEq(t, `[
		{"task":"caption","result":"a dog in a park"},
		{"task":"tags","result":"[\"dog\",\"park\"]"}
	]`, out)
}

func TestLocalBackendSkipsEmptyTaskOutput(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"caption": "",
		"tags":    "dog",
	}}
	b := NewLocalBackend(runner, []string{"caption", "tags"}, testLogger())

	out, err := b.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"task":"tags","result":"dog"}]`, out)
}

func TestLocalBackendSkipsWhenNothingProduced(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{}}
	b := NewLocalBackend(runner, []string{"caption"}, testLogger())

	_, err := b.Analyze(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSkipped)

	b = NewLocalBackend(runner, nil, testLogger())
	_, err = b.Analyze(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSkipped)
}

func TestLocalBackendFailsOnTaskError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("model crashed")}
	b := NewLocalBackend(runner, []string{"caption"}, testLogger())

	_, err := b.Analyze(context.Background(), nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSkipped)
}

func TestBridgeBackendForwardsImage(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"tags":["dog"]}`))
	}))
	defer srv.Close()

	b := NewBridgeBackend(srv.URL, []string{"tags", "caption"}, srv.Client())
	out, err := b.Analyze(context.Background(), []byte{0xFF, 0xD8})
	require.NoError(t, err)

	assert.Equal(t, "/api/vision/1.0/tags,caption", gotPath)
	assert.Equal(t, []byte{0xFF, 0xD8}, gotBody)
	assert.Equal(t, `{"tags":["dog"]}`, out)
}

func TestBridgeBackendSkipsOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not interested", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	b := NewBridgeBackend(srv.URL, []string{"tags"}, srv.Client())
	_, err := b.Analyze(context.Background(), []byte{1})
	assert.ErrorIs(t, err, ErrSkipped)
}

func TestCloudV1BackendSendsKeyAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "/vision/v3.2/analyze", r.URL.Path)
		w.Write([]byte(`{"description":"a forest"}`))
	}))
	defer srv.Close()

	b := NewCloudV1Backend(srv.URL, "secret", NewCallBudget(0, 0), srv.Client())
	out, err := b.Analyze(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, `{"description":"a forest"}`, out)
}

func TestCloudBackendErrorsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := NewCloudV2Backend(srv.URL, "secret", NewCallBudget(0, 0), srv.Client())
	_, err := b.Analyze(context.Background(), []byte{1})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSkipped, "cloud failures are retried, not skipped")
}

func TestCallBudgetBlocksOverMinuteLimit(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := NewCallBudget(2, 0)
	b.now = func() time.Time { return now }

	ok, _ := b.tryAcquire()
	assert.True(t, ok)
	ok, _ = b.tryAcquire()
	assert.True(t, ok)

	ok, retry := b.tryAcquire()
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))

	// The window slides: a minute later calls flow again
	now = now.Add(61 * time.Second)
	ok, _ = b.tryAcquire()
	assert.True(t, ok)
}

func TestCallBudgetBlocksOverDayLimit(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := NewCallBudget(0, 3)
	b.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, _ := b.tryAcquire()
		require.True(t, ok)
		now = now.Add(time.Hour)
	}

	ok, _ := b.tryAcquire()
	assert.False(t, ok)

	// Oldest mark ages out of the day window
	now = now.Add(22 * time.Hour)
	ok, _ = b.tryAcquire()
	assert.True(t, ok)
}

func TestCallBudgetWaitHonorsContext(t *testing.T) {
	b := NewCallBudget(1, 0)
	require.NoError(t, b.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
