package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclinic/fhirsub/pkg/resource"
	"github.com/openclinic/fhirsub/pkg/store"
	"github.com/openclinic/fhirsub/pkg/store/mocks"
)

type writableStore interface {
	store.SubscriptionStore
	store.ResourceReader
	Put(ctx context.Context, r *resource.Resource) (resource.Event, error)
	Delete(ctx context.Context, ref resource.Reference) (resource.Event, error)
	SetPublisher(p store.Publisher)
}

type recorder struct {
	mu     sync.Mutex
	events []resource.Event
}

func (r *recorder) Publish(ev resource.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func stores(t *testing.T) map[string]writableStore {
	t.Helper()
	sq, err := store.OpenSQLite(filepath.Join(t.TempDir(), "fhirsub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]writableStore{
		"memory": store.NewMemoryStore(),
		"sqlite": sq,
	}
}

func subscription(id, status string) *resource.Resource {
	return resource.New(resource.KindSubscription, id, map[string]any{
		"status":   status,
		"criteria": "Patient?active=true",
		"channel": map[string]any{
			"type":    "websocket",
			"payload": "application/fhir+json",
		},
	})
}

func TestPutReadDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := &recorder{}
			s.SetPublisher(rec)

			p := resource.New(resource.KindPatient, "p1", map[string]any{"active": true})
			ev, err := s.Put(ctx, p)
			require.NoError(t, err)
			assert.Equal(t, resource.OpCreate, ev.Operation)
			assert.Equal(t, resource.KindPatient, ev.Kind)
			assert.Equal(t, "p1", ev.ResourceID)

			ev, err = s.Put(ctx, p)
			require.NoError(t, err)
			assert.Equal(t, resource.OpUpdate, ev.Operation)
			assert.Equal(t, []any{"2"}, ev.Resource.Values("meta.versionId"))

			got, err := s.ReadResource(ctx, p.Reference())
			require.NoError(t, err)
			assert.Equal(t, []any{true}, got.Values("active"))
			assert.Len(t, got.Values("meta.lastUpdated"), 1)

			ev, err = s.Delete(ctx, p.Reference())
			require.NoError(t, err)
			assert.Equal(t, resource.OpDelete, ev.Operation)

			_, err = s.ReadResource(ctx, p.Reference())
			assert.ErrorIs(t, err, store.ErrNotFound)

			_, err = s.Delete(ctx, p.Reference())
			assert.ErrorIs(t, err, store.ErrNotFound)

			require.Len(t, rec.events, 3)
			assert.Equal(t, resource.OpCreate, rec.events[0].Operation)
			assert.Equal(t, resource.OpDelete, rec.events[2].Operation)

			_, err = s.Put(ctx, resource.New(resource.KindPatient, "", nil))
			assert.ErrorIs(t, err, store.ErrNoID)
		})
	}
}

func TestReadActiveSubscriptions(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, r := range []*resource.Resource{
				subscription("b", "active"),
				subscription("a", "active"),
				subscription("c", "off"),
				subscription("d", "requested"),
				resource.New(resource.KindPatient, "active", map[string]any{"status": "active"}),
			} {
				_, err := s.Put(ctx, r)
				require.NoError(t, err)
			}

			subs, err := s.ReadActiveSubscriptions(ctx)
			require.NoError(t, err)
			require.Len(t, subs, 2)
			assert.Equal(t, "a", subs[0].ID)
			assert.Equal(t, "b", subs[1].ID)
			assert.Equal(t, "Patient?active=true", subs[0].Criteria)
			assert.Equal(t, resource.PayloadJSON, subs[0].Channel.Payload)

			// Turning a subscription off removes it.
			_, err = s.Put(ctx, subscription("a", "off"))
			require.NoError(t, err)
			subs, err = s.ReadActiveSubscriptions(ctx)
			require.NoError(t, err)
			require.Len(t, subs, 1)
			assert.Equal(t, "b", subs[0].ID)
		})
	}
}

func TestMemoryStoreReadError(t *testing.T) {
	s := store.NewMemoryStore()
	s.SetReadError(errors.New("disk on fire"))

	_, err := s.ReadActiveSubscriptions(context.Background())
	assert.ErrorIs(t, err, store.ErrStorage)

	_, err = s.ReadResource(context.Background(), resource.Reference{Kind: resource.KindPatient, ID: "1"})
	assert.ErrorIs(t, err, store.ErrStorage)

	s.SetReadError(nil)
	_, err = s.ReadActiveSubscriptions(context.Background())
	assert.NoError(t, err)
}

func TestSQLiteCount(t *testing.T) {
	s, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for _, id := range []string{"1", "2"} {
		_, err := s.Put(ctx, resource.New(resource.KindTask, id, map[string]any{"status": "ready"}))
		require.NoError(t, err)
	}
	n, err := s.Count(ctx, resource.KindTask)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	found := resource.Reference{Kind: resource.KindPatient, ID: "p1"}
	missing := resource.Reference{Kind: resource.KindPatient, ID: "p2"}
	broken := resource.Reference{Kind: resource.KindPatient, ID: "p3"}

	reader := mocks.NewMockResourceReader(t)
	reader.EXPECT().ReadResource(mock.Anything, found).
		Return(resource.New(resource.KindPatient, "p1", nil), nil).Once()
	reader.EXPECT().ReadResource(mock.Anything, missing).
		Return(nil, store.ErrNotFound).Once()
	reader.EXPECT().ReadResource(mock.Anything, broken).
		Return(nil, store.ErrStorage).Once()

	r := store.NewResolver(reader)

	got, err := r.Resolve(ctx, found)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)

	got, err = r.Resolve(ctx, missing)
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = r.Resolve(ctx, broken)
	assert.ErrorIs(t, err, store.ErrStorage)
}
