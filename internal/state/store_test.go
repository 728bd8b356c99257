package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

func newTestStore() *Store {
	return New(zap.NewNop())
}

func TestInitialShape(t *testing.T) {
	s := newTestStore()
	assert.NotNil(t, s.Get(KeyMonthlyData))
	assert.NotNil(t, s.Get(KeyClientsData))
	assert.NotNil(t, s.Get(KeyInventory))
	assert.NotNil(t, s.Get(KeySettings))
	assert.Equal(t, false, s.Get(KeyIsLoading))
	assert.Regexp(t, `^\d{4}-\d{2}$`, s.Get(KeyCurrentMonth))
}

func TestSetValidatesCurrentMonth(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Set(KeyCurrentMonth, "2026-03"))
	assert.Error(t, s.Set(KeyCurrentMonth, "march"))
	assert.Error(t, s.Set(KeyCurrentMonth, 202603))
	assert.Equal(t, "2026-03", s.Get(KeyCurrentMonth))
}

func TestSetNotifiesSubscribers(t *testing.T) {
	s := newTestStore()
	var got any
	s.Subscribe(KeyCurrentMonth, func(v any) { got = v })

	require.NoError(t, s.Set(KeyCurrentMonth, "2026-04"))
	assert.Equal(t, "2026-04", got)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := newTestStore()
	calls := 0
	off := s.Subscribe(KeyCurrentMonth, func(v any) { calls++ })

	require.NoError(t, s.Set(KeyCurrentMonth, "2026-04"))
	off()
	require.NoError(t, s.Set(KeyCurrentMonth, "2026-05"))
	assert.Equal(t, 1, calls)
}

func TestReentrantSetIsDeferred(t *testing.T) {
	s := newTestStore()
	var seen []string
	s.Subscribe(KeyCurrentMonth, func(v any) {
		seen = append(seen, v.(string))
		if v == "2026-03" {
			// Write from inside a notification: must not run inline.
			_ = s.Set(KeyCurrentMonth, "2026-04")
			assert.Equal(t, "2026-03", s.Get(KeyCurrentMonth))
		}
	})

	require.NoError(t, s.Set(KeyCurrentMonth, "2026-03"))
	assert.Equal(t, []string{"2026-03", "2026-04"}, seen)
	assert.Equal(t, "2026-04", s.Get(KeyCurrentMonth))
}

func TestUpdateAbortsWholeBatchOnFailure(t *testing.T) {
	s := newTestStore()
	before := s.Get(KeyCurrentMonth)

	err := s.Update(map[string]any{
		KeyCurrentMonth: "2026-07",
		KeySettings:     (*model.Settings)(nil), // invalid
	})
	require.Error(t, err)
	assert.Equal(t, before, s.Get(KeyCurrentMonth), "no key of a failed batch may be applied")
}

func TestUpdateAppliesBatch(t *testing.T) {
	s := newTestStore()
	monthly := map[string]*model.MonthBucket{"2026-03": model.NewMonthBucket()}

	require.NoError(t, s.Update(map[string]any{
		KeyCurrentMonth: "2026-03",
		KeyMonthlyData:  monthly,
	}))
	assert.Equal(t, "2026-03", s.Get(KeyCurrentMonth))
	assert.Len(t, s.MonthlyData(), 1)
}

func TestUnknownKeysPermitted(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Set("uiTheme", "dark"))
	assert.Equal(t, "dark", s.Get("uiTheme"))
}

func TestSettingsValidation(t *testing.T) {
	s := newTestStore()
	bad := &model.Settings{EURRate: 0, USDRate: 0, Origins: []string{}, Vendors: []string{}}
	assert.Error(t, s.Set(KeySettings, bad))

	good := model.DefaultSettings()
	assert.NoError(t, s.Set(KeySettings, good))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := newTestStore()
	monthly := map[string]*model.MonthBucket{"2026-03": model.NewMonthBucket()}
	require.NoError(t, s.Set(KeyMonthlyData, monthly))

	snap := s.Snapshot()
	monthly["2026-04"] = model.NewMonthBucket()

	inner, ok := snap[KeyMonthlyData].(map[string]any)
	require.True(t, ok)
	assert.Len(t, inner, 1, "snapshot must not observe later writes")
}

func TestChangeLogBounded(t *testing.T) {
	s := newTestStore()
	for i := 0; i < 80; i++ {
		require.NoError(t, s.Set(KeyIsLoading, i%2 == 0))
	}
	assert.LessOrEqual(t, len(s.ChangeLog()), 50)
}

func TestReset(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Set(KeyCurrentMonth, "2020-01"))
	s.Reset()
	assert.NotEqual(t, "2020-01", s.Get(KeyCurrentMonth))
	assert.Empty(t, s.ChangeLog())
}
