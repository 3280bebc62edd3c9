package featureadmin

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/sqlite-facevec/aggregate"
	"github.com/viant/sqlite-facevec/engine"
	"github.com/viant/sqlite-facevec/feature"
	"github.com/viant/sqlite-facevec/outlier"
)

type outlierRow struct {
	identity  string
	label     string
	reference string
	distance  float64
}

// openStore installs the module before the first connection is opened.
func openStore(t *testing.T, samples ...[]float64) (*sql.DB, *feature.SQLiteStore) {
	t.Helper()
	require.NoError(t, Install())
	ctx := context.Background()
	db, err := engine.OpenFile(filepath.Join(t.TempDir(), "features.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := feature.NewSQLiteStore(ctx, db)
	require.NoError(t, err)
	photos := make([]aggregate.Photo, len(samples))
	for i, v := range samples {
		photos[i] = aggregate.Photo{Label: fmt.Sprintf("child1_%c.jpg", 'a'+i), Vector: v}
	}
	_, err = aggregate.New(store).IngestIdentity(ctx, "child1", photos)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE VIRTUAL TABLE fo USING feature_outliers(identity_id)`)
	require.NoError(t, err)
	return db, store
}

func queryOutliers(t *testing.T, db *sql.DB, sqlText string, args ...any) []outlierRow {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), sqlText, args...)
	require.NoError(t, err)
	defer rows.Close()
	var out []outlierRow
	for rows.Next() {
		var r outlierRow
		require.NoError(t, rows.Scan(&r.identity, &r.label, &r.reference, &r.distance))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestFeatureOutliersQuery(t *testing.T) {
	db, store := openStore(t, []float64{1, 1}, []float64{1, 3}, []float64{5, 5})
	require.NoError(t, Register(db, outlier.New(store)))
	query := func(sqlText string, args ...any) []outlierRow {
		return queryOutliers(t, db, sqlText, args...)
	}

	got := query(`SELECT identity_id, source_label, reference, distance FROM fo WHERE identity_id MATCH 'child1' AND threshold = 2.0`)
	require.Len(t, got, 3)
	assert.Equal(t, outlierRow{identity: "child1", label: "child1_a.jpg", reference: "mean", distance: got[0].distance}, got[0])
	assert.Equal(t, "mean", got[1].reference)
	assert.Equal(t, "child1_c.jpg", got[1].label)
	assert.InDelta(t, math.Sqrt(100.0/9.0), got[1].distance, 1e-9)
	assert.Equal(t, "median", got[2].reference)
	assert.Equal(t, "child1_c.jpg", got[2].label)

	// The default threshold of 1.0 flags every sample except the median itself.
	got = query(`SELECT identity_id, source_label, reference, distance FROM fo WHERE identity_id MATCH ?`, "child1")
	var fromMean, fromMedian []string
	for _, r := range got {
		if r.reference == "mean" {
			fromMean = append(fromMean, r.label)
		} else {
			fromMedian = append(fromMedian, r.label)
		}
	}
	assert.Equal(t, []string{"child1_a.jpg", "child1_b.jpg", "child1_c.jpg"}, fromMean)
	assert.Equal(t, []string{"child1_a.jpg", "child1_c.jpg"}, fromMedian)

	got = query(`SELECT identity_id, source_label, reference, distance FROM fo WHERE identity_id MATCH 'child1' AND threshold = 100`)
	assert.Empty(t, got)
}

func TestBindReplacesDetector(t *testing.T) {
	first, firstStore := openStore(t, []float64{1, 1}, []float64{1, 3}, []float64{5, 5})
	require.NoError(t, Bind(outlier.New(firstStore), WithDefaultThreshold(2.0)))
	assert.Len(t, queryOutliers(t, first, `SELECT identity_id, source_label, reference, distance FROM fo WHERE identity_id MATCH 'child1'`), 3)

	// All samples equal: nothing is an outlier in the second database.
	second, secondStore := openStore(t, []float64{2, 2}, []float64{2, 2})
	require.NoError(t, Bind(outlier.New(secondStore), WithDefaultThreshold(2.0)))
	assert.Empty(t, queryOutliers(t, second, `SELECT identity_id, source_label, reference, distance FROM fo WHERE identity_id MATCH 'child1'`))
}

func TestRegisterRequiresDetector(t *testing.T) {
	db, err := engine.Open(filepath.Join(t.TempDir(), "features.db"))
	require.NoError(t, err)
	defer db.Close()
	assert.Error(t, Register(db, nil))
	assert.Error(t, Bind(nil))
}
