package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclinic/fhirsub/pkg/registry"
	"github.com/openclinic/fhirsub/pkg/resource"
	"github.com/openclinic/fhirsub/pkg/store"
	"github.com/openclinic/fhirsub/pkg/store/mocks"
)

func sub(id, criteria string) *resource.Subscription {
	return &resource.Subscription{
		ID:       id,
		Criteria: criteria,
		Status:   resource.StatusActive,
		Channel:  resource.Channel{Type: "websocket", Payload: resource.PayloadJSON},
	}
}

func TestRegistryNotBuiltUntilRefresh(t *testing.T) {
	st := mocks.NewMockSubscriptionStore(t)
	r := registry.New(registry.Config{Store: st})

	assert.False(t, r.Built())
	assert.Nil(t, r.Current())
	assert.Nil(t, r.Candidates(resource.KindPatient))
	_, ok := r.Lookup("x")
	assert.False(t, ok)
}

func TestRegistryRefreshIndexes(t *testing.T) {
	st := mocks.NewMockSubscriptionStore(t)
	st.EXPECT().ReadActiveSubscriptions(mock.Anything).Return([]*resource.Subscription{
		sub("Subscription/a/_history/3", "Patient?active=true"),
		sub("b", "Observation?status=final"),
		sub("c", "Patient?gender=female"),
		sub("bad", "Patient?shoe-size=9"),
		sub("gone", "Medication?code=123"),
		{ID: "off", Criteria: "Patient", Status: resource.StatusOff},
	}, nil).Once()

	r := registry.New(registry.Config{Store: st})
	require.NoError(t, r.Refresh(context.Background()))

	require.True(t, r.Built())
	gen := r.Current()
	assert.Equal(t, uint64(1), gen.Seq())
	assert.Equal(t, 3, gen.Len())
	assert.Equal(t, 2, gen.Dropped())

	patients := r.Candidates(resource.KindPatient)
	require.Len(t, patients, 2)
	assert.Equal(t, "Patient?active=true", patients[0].Matcher.Criteria())
	assert.Len(t, r.Candidates(resource.KindObservation), 1)
	assert.Empty(t, r.Candidates(resource.KindTask))

	s, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "Patient?active=true", s.Criteria)
	_, ok = r.Lookup("bad")
	assert.False(t, ok)
	_, ok = r.Lookup("off")
	assert.False(t, ok)
}

func TestRegistryStorageFailureKeepsPreviousGeneration(t *testing.T) {
	st := mocks.NewMockSubscriptionStore(t)
	st.EXPECT().ReadActiveSubscriptions(mock.Anything).
		Return([]*resource.Subscription{sub("a", "Patient")}, nil).Once()
	st.EXPECT().ReadActiveSubscriptions(mock.Anything).
		Return(nil, store.ErrStorage).Once()

	r := registry.New(registry.Config{Store: st})
	require.NoError(t, r.Refresh(context.Background()))
	before := r.Current()

	err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, store.ErrStorage)
	assert.Same(t, before, r.Current())

	_, ok := r.Lookup("a")
	assert.True(t, ok)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Refreshes)
	assert.Equal(t, uint64(1), stats.Failures)
	assert.Equal(t, uint64(1), stats.Generation)
}

func TestRegistryFirstRefreshFailureLeavesUnbuilt(t *testing.T) {
	st := mocks.NewMockSubscriptionStore(t)
	st.EXPECT().ReadActiveSubscriptions(mock.Anything).
		Return(nil, errors.New("down")).Once()

	r := registry.New(registry.Config{Store: st})
	assert.Error(t, r.EnsureBuilt(context.Background()))
	assert.False(t, r.Built())
}

func TestRegistryEnsureBuiltOnce(t *testing.T) {
	st := mocks.NewMockSubscriptionStore(t)
	st.EXPECT().ReadActiveSubscriptions(mock.Anything).
		Return([]*resource.Subscription{sub("a", "Patient")}, nil).Once()

	r := registry.New(registry.Config{Store: st})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.EnsureBuilt(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1), r.Stats().Refreshes)
}

func TestRegistryRefreshIdempotent(t *testing.T) {
	subs := []*resource.Subscription{
		sub("a", "Patient?active=true"),
		sub("b", "Patient?active=false"),
	}
	st := mocks.NewMockSubscriptionStore(t)
	st.EXPECT().ReadActiveSubscriptions(mock.Anything).Return(subs, nil).Twice()

	r := registry.New(registry.Config{Store: st})
	patient := resource.New(resource.KindPatient, "1", map[string]any{"active": true})

	matched := func() []string {
		var ids []string
		for _, e := range r.Candidates(resource.KindPatient) {
			if e.Matcher.Matches(patient, nil) {
				ids = append(ids, e.Subscription.IDPart())
			}
		}
		return ids
	}

	require.NoError(t, r.Refresh(context.Background()))
	first := matched()
	require.NoError(t, r.Refresh(context.Background()))
	second := matched()

	assert.Equal(t, []string{"a"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, uint64(2), r.Current().Seq())
}

func TestRegistryConcurrentReaders(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()
	_, err := mem.Put(ctx, sub("a", "Patient").Resource())
	require.NoError(t, err)

	r := registry.New(registry.Config{Store: mem})
	require.NoError(t, r.Refresh(ctx))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				gen := r.Current()
				// A generation is internally consistent: every candidate is
				// also indexed by id.
				for _, e := range gen.Candidates(resource.KindPatient) {
					_, ok := gen.Lookup(e.Subscription.IDPart())
					assert.True(t, ok)
				}
			}
		}()
	}

	for i := range 50 {
		s := sub("a", "Patient")
		if i%2 == 0 {
			s.Status = resource.StatusOff
		}
		_, err := mem.Put(ctx, s.Resource())
		require.NoError(t, err)
		require.NoError(t, r.Refresh(ctx))
	}
	close(stop)
	wg.Wait()
}
