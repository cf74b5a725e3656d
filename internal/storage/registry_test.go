package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicemonitor/internal/models"
)

func newTestRegistry(t *testing.T) *RegistryStore {
	t.Helper()

	store, err := NewRegistryStore(filepath.Join(t.TempDir(), "data", "device_data.json"))
	require.NoError(t, err)
	return store
}

func TestLoadCreatesMissingRegistry(t *testing.T) {
	store := newTestRegistry(t)

	reg, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, reg)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadReadsIntegerKeys(t *testing.T) {
	store := newTestRegistry(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"2": {"name": "nas", "ip": "10.0.0.2"}, "1": {"name": "router", "ip": "127.0.0.1"}}`), 0o644))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].ID)
	assert.Equal(t, models.Device{Name: "router", IP: "127.0.0.1"}, entries[0].Device)
	assert.Equal(t, 2, entries[1].ID)
}

func TestLoadCorruptRegistry(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid json", content: `{"1": {"name": "router"`},
		{name: "non integer key", content: `{"router": {"name": "router", "ip": "127.0.0.1"}}`},
		{name: "duplicate after normalising", content: `{"1": {"name": "a", "ip": "x"}, "01": {"name": "b", "ip": "y"}}`},
		{name: "array document", content: `[1, 2, 3]`},
		{name: "empty file", content: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestRegistry(t)
			require.NoError(t, os.WriteFile(store.Path(), []byte(tt.content), 0o644))

			_, err := store.Load()
			require.ErrorIs(t, err, ErrStoreCorrupt)
		})
	}
}

func TestInsertRefusesEmptyRegistryFile(t *testing.T) {
	store := newTestRegistry(t)
	require.NoError(t, os.WriteFile(store.Path(), nil, 0o644))

	err := store.Insert(1, models.Device{Name: "router", IP: "127.0.0.1"})
	require.ErrorIs(t, err, ErrStoreCorrupt)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestInsertThenGet(t *testing.T) {
	store := newTestRegistry(t)
	dev := models.Device{Name: "router", IP: "127.0.0.1"}

	require.NoError(t, store.Insert(1, dev))

	got, ok, err := store.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, dev, got)
}

func TestInsertDuplicateLeavesRegistryUnchanged(t *testing.T) {
	store := newTestRegistry(t)
	require.NoError(t, store.Insert(1, models.Device{Name: "router", IP: "127.0.0.1"}))

	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	err = store.Insert(1, models.Device{Name: "other", IP: "10.0.0.1"})
	require.ErrorIs(t, err, ErrDuplicateID)

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	got, _, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "router", got.Name)
}

func TestDeleteThenGet(t *testing.T) {
	store := newTestRegistry(t)
	require.NoError(t, store.Insert(1, models.Device{Name: "router", IP: "127.0.0.1"}))
	require.NoError(t, store.Insert(2, models.Device{Name: "nas", IP: "10.0.0.2"}))

	require.NoError(t, store.Delete(1))

	_, ok, err := store.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Get(2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteMissingLeavesRegistryUnchanged(t *testing.T) {
	store := newTestRegistry(t)
	require.NoError(t, store.Insert(1, models.Device{Name: "router", IP: "127.0.0.1"}))

	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	require.ErrorIs(t, store.Delete(9), ErrNotFound)

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdate(t *testing.T) {
	store := newTestRegistry(t)
	require.NoError(t, store.Insert(3, models.Device{Name: "printer", IP: "10.0.0.3"}))

	require.NoError(t, store.Update(3, models.Device{Name: "printer-2f", IP: "10.0.2.3"}))

	got, ok, err := store.Get(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.Device{Name: "printer-2f", IP: "10.0.2.3"}, got)

	require.ErrorIs(t, store.Update(5, models.Device{Name: "ghost"}), ErrNotFound)
}

func TestSaveLoadIsIdempotent(t *testing.T) {
	store := newTestRegistry(t)
	require.NoError(t, store.Insert(10, models.Device{Name: "switch", IP: "10.0.0.10"}))
	require.NoError(t, store.Insert(2, models.Device{Name: "router", IP: "10.0.0.1"}))

	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	reg, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, store.Save(reg))

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	store := newTestRegistry(t)
	require.NoError(t, store.Insert(1, models.Device{Name: "router", IP: "127.0.0.1"}))

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "device_data.json", entries[0].Name())
}

func TestSaveFailureKeepsTargetAndRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "device_data.json")
	// A directory in place of the registry file makes the final rename fail.
	require.NoError(t, os.Mkdir(target, 0o755))
	marker := filepath.Join(target, "keep")
	require.NoError(t, os.WriteFile(marker, []byte("previous"), 0o644))

	store, err := NewRegistryStore(target)
	require.NoError(t, err)

	err = store.Save(models.Registry{1: {Name: "router", IP: "127.0.0.1"}})
	require.Error(t, err)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "device_data.json", entries[0].Name())
}

func TestPersistedDocumentOmitsID(t *testing.T) {
	store := newTestRegistry(t)
	require.NoError(t, store.Insert(1, models.Device{Name: "router", IP: "127.0.0.1"}))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"1": {"name": "router", "ip": "127.0.0.1"}}`, string(data))
}

func TestRegistryErrorsCarryDeviceID(t *testing.T) {
	store := newTestRegistry(t)

	err := store.Update(42, models.Device{Name: "ghost"})

	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, 42, devErr.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "device not found: 42", err.Error())
}
