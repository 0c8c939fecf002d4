package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/raine/yandex-direct/internal/direct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGet(t *testing.T) {
	store := setupStore(t)

	req := direct.ReportRequest{
		ReportType:    "CAMPAIGN_PERFORMANCE_REPORT",
		FieldNames:    []string{"Date", "Clicks"},
		DateRangeType: direct.DateRangeCustom,
		DateFrom:      "2020-10-01",
		DateTo:        "2020-10-02",
	}
	saved, err := store.Save(req, &direct.Report{Body: "Date\tClicks\n2020-10-01\t3\n", Rounds: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	got, err := store.Get(saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "CAMPAIGN_PERFORMANCE_REPORT", got.ReportType)
	assert.Equal(t, "CUSTOM_DATE", got.DateRangeType)
	assert.Equal(t, "2020-10-01", got.DateFrom)
	assert.Equal(t, "2020-10-02", got.DateTo)
	assert.Equal(t, []string{"Date", "Clicks"}, got.FieldNames)
	assert.Equal(t, "Date\tClicks\n2020-10-01\t3\n", got.Body)
	assert.Equal(t, 3, got.Rounds)
	assert.WithinDuration(t, time.Now(), got.FetchedAt, time.Minute)
}

func TestGet_NotFound(t *testing.T) {
	store := setupStore(t)

	got, err := store.Get("missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSave_PredefinedRangeDropsDates(t *testing.T) {
	store := setupStore(t)

	req := direct.ReportRequest{
		ReportType:    "ACCOUNT_PERFORMANCE_REPORT",
		FieldNames:    []string{"Cost"},
		DateRangeType: direct.DateRangeLast7Days,
		DateFrom:      "2020-10-01",
	}
	saved, err := store.Save(req, &direct.Report{Body: "Cost\n1\n", Rounds: 1})
	require.NoError(t, err)

	got, err := store.Get(saved.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DateFrom)
	assert.Equal(t, "LAST_7_DAYS", got.DateRangeType)
}

func TestLatestAndList(t *testing.T) {
	store := setupStore(t)

	req := direct.NewReportRequest("CAMPAIGN_PERFORMANCE_REPORT", "Clicks")
	_, err := store.Save(req, &direct.Report{Body: "first", Rounds: 1})
	require.NoError(t, err)
	second, err := store.Save(req, &direct.Report{Body: "second", Rounds: 2})
	require.NoError(t, err)
	_, err = store.Save(direct.NewReportRequest("AD_PERFORMANCE_REPORT", "Clicks"), &direct.Report{Body: "other", Rounds: 1})
	require.NoError(t, err)

	latest, err := store.Latest("CAMPAIGN_PERFORMANCE_REPORT")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, "second", latest.Body)

	none, err := store.Latest("SEARCH_QUERY_PERFORMANCE_REPORT")
	require.NoError(t, err)
	assert.Nil(t, none)

	list, err := store.List(10)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	for _, r := range list {
		assert.Empty(t, r.Body)
	}
}

func TestPrune(t *testing.T) {
	store := setupStore(t)

	_, err := store.Save(direct.NewReportRequest("CAMPAIGN_PERFORMANCE_REPORT", "Clicks"), &direct.Report{Body: "x", Rounds: 1})
	require.NoError(t, err)

	removed, err := store.Prune(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	removed, err = store.Prune(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestNewSQLiteStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = store.Save(direct.NewReportRequest("CAMPAIGN_PERFORMANCE_REPORT", "Clicks"), &direct.Report{Body: "x", Rounds: 1})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.List(10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
