package localstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

func newTestPersistence() (*Persistence, *MemoryKV) {
	kv := NewMemoryKV()
	return NewPersistence(kv, zap.NewNop()), kv
}

func TestMonthlyDataRoundTrip(t *testing.T) {
	p, _ := newTestPersistence()

	bucket := model.NewMonthBucket()
	bucket.Orders = append(bucket.Orders, &model.Order{
		ID: "1", Date: "2026-03-15", Client: "A", Model: "M", TotalEUR: 98.38,
	})
	require.NoError(t, p.SaveMonthlyData(map[string]*model.MonthBucket{"2026-03": bucket}))

	loaded, err := p.LoadMonthlyData()
	require.NoError(t, err)
	require.Contains(t, loaded, "2026-03")
	require.Len(t, loaded["2026-03"].Orders, 1)
	assert.Equal(t, "A", loaded["2026-03"].Orders[0].Client)
	assert.NotNil(t, loaded["2026-03"].Expenses, "buckets are ensured non-nil on load")
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	p, _ := newTestPersistence()

	monthly, err := p.LoadMonthlyData()
	require.NoError(t, err)
	assert.Empty(t, monthly)

	clients, err := p.LoadClientsData()
	require.NoError(t, err)
	assert.Empty(t, clients)

	settings, err := p.LoadSettings()
	require.NoError(t, err)
	assert.Nil(t, settings)
}

func TestCorruptJSONIsLocalCorruption(t *testing.T) {
	p, kv := newTestPersistence()
	require.NoError(t, kv.Put(KeyClientsData, "{not json"))

	_, err := p.LoadClientsData()
	require.Error(t, err)
	assert.ErrorContains(t, err, "unreadable JSON")
}

func TestEmergencyBackupRetention(t *testing.T) {
	p, _ := newTestPersistence()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		snap := &EmergencySnapshot{SavedAt: base.Add(time.Duration(i) * time.Minute), Reason: "interval"}
		require.NoError(t, p.WriteEmergencyBackup(snap))
	}

	keys, err := p.EmergencyBackupKeys()
	require.NoError(t, err)
	require.Len(t, keys, 3, "only the 3 most recent backups survive")
	// Oldest first, and the two oldest writes were pruned.
	assert.Equal(t, EmergencyBackupPrefix+"1772359320000", keys[0])
}

func TestStorageHealth(t *testing.T) {
	p, kv := newTestPersistence()

	h := p.StorageHealth()
	assert.Equal(t, HealthHealthy, h.Status)

	kv.FailWrites = true
	h = p.StorageHealth()
	assert.Equal(t, HealthError, h.Status)
	assert.NotEmpty(t, h.Issues)
}

func TestExportImportRoundTrip(t *testing.T) {
	p, _ := newTestPersistence()
	require.NoError(t, p.SaveCurrentMonth("2026-03"))
	require.NoError(t, p.SaveClientsData(map[string]*model.Client{
		"client_1": {ID: "client_1", Name: "Иван"},
	}))

	doc, err := p.ExportAll()
	require.NoError(t, err)

	fresh, _ := newTestPersistence()
	require.NoError(t, fresh.ImportAll(doc))

	month, err := fresh.LoadCurrentMonth()
	require.NoError(t, err)
	assert.Equal(t, "2026-03", month)

	clients, err := fresh.LoadClientsData()
	require.NoError(t, err)
	require.Contains(t, clients, "client_1")
	assert.Equal(t, "Иван", clients["client_1"].Name)
}

func TestLastSave(t *testing.T) {
	p, _ := newTestPersistence()
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.TouchLastSave(at))

	got, err := p.LastSave()
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
}
