package device

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/twc-director/internal/twc"
)

// mockRepository wraps a real repository and can inject a racing insert.
type mockRepository struct {
	Repository

	mu          sync.Mutex
	creates     int
	beforeFirst func()
	listErr     error
}

func (m *mockRepository) Create(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	m.creates++
	hook := m.beforeFirst
	m.beforeFirst = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return m.Repository.Create(ctx, rec)
}

func (m *mockRepository) List(ctx context.Context) ([]Record, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.Repository.List(ctx)
}

func newTestRegistry(t *testing.T) (*Registry, *mockRepository) {
	t.Helper()
	repo := &mockRepository{Repository: NewSQLiteRepository(setupTestDB(t))}
	return NewRegistry(repo, "site-001"), repo
}

func charger(serial string, addr uint16, firmware string) *twc.Peripheral {
	p := twc.NewPeripheral(serial, addr)
	p.Apply(twc.CategoryPeripheral, twc.Message{FirmwareVersion: firmware})
	return p
}

// ===== Info Tests =====

func TestInfoFor(t *testing.T) {
	restarts := 4
	p := twc.NewPeripheral("A1234", 0x8a3f)
	p.Apply(twc.CategoryPeripheral, twc.Message{FirmwareVersion: "4.5.3", RestartCounter: &restarts})

	info := InfoFor(p)

	assert.Equal(t, "A1234_8A3F", info.Identifier)
	assert.Equal(t, "A1234 8A3F", info.Name)
	assert.Equal(t, "Home Automation Industries", info.Manufacturer)
	assert.Equal(t, "Tesla Wall Charger", info.Model)
	assert.Equal(t, "4.5.3", info.SWVersion)
	assert.Equal(t, "8a3f", info.Attributes[AttrAddress])
	assert.Equal(t, "4", info.Attributes[AttrRestartCount])
}

func TestInfo_Validate(t *testing.T) {
	assert.ErrorIs(t, Info{Name: "x"}.Validate(), ErrInvalidDevice)
	assert.ErrorIs(t, Info{Identifier: "x"}.Validate(), ErrInvalidDevice)
	assert.NoError(t, Info{Identifier: "x", Name: "y"}.Validate())
}

// ===== GetOrCreate Tests =====

func TestRegistry_GetOrCreateIsIdempotent(t *testing.T) {
	reg, repo := newTestRegistry(t)
	ctx := context.Background()
	info := InfoFor(charger("A1234", 0x8a3f, "4.5.3"))

	first, err := reg.GetOrCreate(ctx, info)
	require.NoError(t, err)
	second, err := reg.GetOrCreate(ctx, info)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "site-001", first.ConfigEntry)
	assert.Equal(t, 1, repo.creates)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_GetOrCreateConcurrent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	info := InfoFor(charger("A1234", 0x8a3f, "4.5.3"))

	var wg sync.WaitGroup
	ids := make([]string, 3)
	errs := make([]error, 3)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := reg.GetOrCreate(ctx, info)
			errs[i] = err
			if err == nil {
				ids[i] = rec.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_GetOrCreateConflictReadsWinner(t *testing.T) {
	reg, repo := newTestRegistry(t)
	ctx := context.Background()

	// Another writer inserts the same identifier between lookup and insert.
	repo.beforeFirst = func() {
		require.NoError(t, repo.Repository.Create(ctx, testRecord("winner", "A1234_8A3F")))
	}

	rec, err := reg.GetOrCreate(ctx, Info{
		Identifier: "A1234_8A3F",
		Name:       "A1234 8A3F",
		SWVersion:  "4.5.3",
	})
	require.NoError(t, err)
	assert.Equal(t, "winner", rec.ID)
}

func TestRegistry_FirmwareChangeUpdatesRecord(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.GetOrCreate(ctx, InfoFor(charger("A1234", 0x8a3f, "4.5.3")))
	require.NoError(t, err)

	rec, err := reg.GetOrCreate(ctx, InfoFor(charger("A1234", 0x8a3f, "4.6.0")))
	require.NoError(t, err)
	assert.Equal(t, "4.6.0", rec.SWVersion)

	stored, err := reg.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "4.6.0", stored.SWVersion)
}

func TestRegistry_GetOrCreateInvalid(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.GetOrCreate(context.Background(), Info{})
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

// ===== Cache Tests =====

func TestRegistry_RefreshCache(t *testing.T) {
	reg, repo := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, repo.Repository.Create(ctx, testRecord("dev-1", "A1234_8A3F")))
	assert.Equal(t, 0, reg.Count())

	require.NoError(t, reg.RefreshCache(ctx))
	assert.Equal(t, 1, reg.Count())

	rec, err := reg.GetByIdentifier(ctx, "A1234_8A3F")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", rec.ID)

	// Cached copies are not shared.
	rec.Name = "changed"
	again, err := reg.GetByID(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "A1234 8A3F", again.Name)
}

func TestRegistry_RefreshCacheError(t *testing.T) {
	reg, repo := newTestRegistry(t)
	repo.listErr = errors.New("disk gone")
	assert.Error(t, reg.RefreshCache(context.Background()))
}

func TestRegistry_ListSorted(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.GetOrCreate(ctx, InfoFor(charger("B5678", 0x0002, "")))
	require.NoError(t, err)
	_, err = reg.GetOrCreate(ctx, InfoFor(charger("A1234", 0x0001, "")))
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "A1234_0001", list[0].Identifier)
}

func TestRegistry_GetByIDNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}
