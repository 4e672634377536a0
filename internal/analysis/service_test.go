package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsight/mailsight/internal/config"
	"github.com/mailsight/mailsight/pkg/models"
)

type stubBackend struct {
	tag    string
	result string
	err    error
}

func (b *stubBackend) Tag() string { return b.tag }

func (b *stubBackend) Analyze(ctx context.Context, image []byte) (string, error) {
	return b.result, b.err
}

type recordingStore struct {
	updated []*models.ImageRecord
}

func (s *recordingStore) UpdateImageAnalysis(ctx context.Context, img *models.ImageRecord) error {
	s.updated = append(s.updated, img)
	return nil
}

type recordingObservers struct {
	notified []int64
}

func (o *recordingObservers) Notify(img *models.ImageRecord) {
	o.notified = append(o.notified, img.ID)
}

type recordingAlerts struct {
	processed []int64
	err       error
}

func (a *recordingAlerts) Process(ctx context.Context, img *models.ImageRecord) error {
	a.processed = append(a.processed, img.ID)
	return a.err
}

func newStubService(backend Backend, store *recordingStore, obs *recordingObservers, alerts *recordingAlerts) *Service {
	d := &Dispatcher{
		active:   config.BackendLocal,
		logger:   testLogger(),
		backends: map[config.Backend]Backend{config.BackendLocal: backend},
	}
	return NewService(d, store, obs, alerts, testLogger())
}

func TestServicePersistsAndFansOut(t *testing.T) {
	store := &recordingStore{}
	obs := &recordingObservers{}
	alerts := &recordingAlerts{}
	svc := newStubService(&stubBackend{tag: "LocalModel", result: `{"tag":"forest"}`}, store, obs, alerts)

	img := &models.ImageRecord{ID: 3, Image: []byte{1}}
	require.NoError(t, svc.Process(context.Background(), img))

	assert.Equal(t, `{"tag":"forest"}`, img.Analysis)
	assert.Equal(t, []string{"LocalModel"}, img.BackendTagList())
	require.Len(t, store.updated, 1)
	assert.Equal(t, []int64{3}, obs.notified)
	assert.Equal(t, []int64{3}, alerts.processed)
}

func TestServiceSkipLeavesRecordUntouched(t *testing.T) {
	store := &recordingStore{}
	obs := &recordingObservers{}
	alerts := &recordingAlerts{}
	svc := newStubService(&stubBackend{tag: "Bridge", err: ErrSkipped}, store, obs, alerts)

	img := &models.ImageRecord{ID: 4, Image: []byte{1}}
	require.NoError(t, svc.Process(context.Background(), img), "a skip is not a failure")

	assert.Empty(t, img.Analysis)
	assert.Empty(t, store.updated)
	assert.Empty(t, obs.notified)
	assert.Empty(t, alerts.processed)
}

func TestServiceBackendFailurePropagates(t *testing.T) {
	store := &recordingStore{}
	svc := newStubService(&stubBackend{tag: "CloudVision", err: errors.New("quota")}, store, &recordingObservers{}, &recordingAlerts{})

	err := svc.Process(context.Background(), &models.ImageRecord{ID: 5, Image: []byte{1}})
	assert.Error(t, err)
	assert.Empty(t, store.updated)
}

func TestServiceAlertFailureDoesNotUnwind(t *testing.T) {
	store := &recordingStore{}
	alerts := &recordingAlerts{err: errors.New("smtp down")}
	svc := newStubService(&stubBackend{tag: "LocalModel", result: "dog"}, store, &recordingObservers{}, alerts)

	img := &models.ImageRecord{ID: 6, Image: []byte{1}}
	require.NoError(t, svc.Process(context.Background(), img))
	assert.Len(t, store.updated, 1)
}
