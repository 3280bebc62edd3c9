package feature

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/sqlite-facevec/engine"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := engine.OpenFile(filepath.Join(t.TempDir(), "features.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)
	return store
}

func sample(identity, label string, vec ...float64) Record {
	return Record{IdentityID: identity, SourceLabel: label, Kind: KindSample, Vector: vec}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx))
}

func TestNewSQLiteStoreNilDB(t *testing.T) {
	_, err := NewSQLiteStore(context.Background(), nil)
	assert.Error(t, err)
}

func TestAppendAndRecordsForIdentity_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	vec := []float64{math.Pi, -0.1, 1e-300, math.MaxFloat64}
	id1, err := store.Append(ctx, sample("child1", "child1_a.jpg", vec...))
	require.NoError(t, err)
	id2, err := store.Append(ctx, sample("child2", "child2_a.jpg", 1, 2, 3, 4))
	require.NoError(t, err)
	id3, err := store.Append(ctx, sample("child1", "child1_b.jpg", 5, 6, 7, 8))
	require.NoError(t, err)
	assert.Less(t, id1, id2)
	assert.Less(t, id2, id3)

	records, err := store.RecordsForIdentity(ctx, "child1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, id1, records[0].ID)
	assert.Equal(t, id3, records[1].ID)
	assert.Equal(t, "child1_a.jpg", records[0].SourceLabel)
	assert.Equal(t, KindSample, records[0].Kind)
	assert.False(t, records[0].CreatedAt.IsZero())
	for i := range vec {
		assert.Equal(t, math.Float64bits(vec[i]), math.Float64bits(records[0].Vector[i]))
	}

	none, err := store.RecordsForIdentity(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAppendRejectsInvalidRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, sample("", "x.jpg", 1))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = store.Append(ctx, Record{IdentityID: "a", Kind: "Atomic", Vector: []float64{1}})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = store.Append(ctx, sample("a", "empty.jpg"))
	assert.ErrorIs(t, err, ErrSerialization)
	var se *SerializationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "empty.jpg", se.SourceLabel)
}

func TestAppendBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.AppendBatch(ctx, []Record{
		sample("child1", "a.jpg", 1, 1),
		sample("child1", "b.jpg", 1, 3),
		sample("child1", "c.jpg", 5, 5),
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.True(t, ids[0] < ids[1] && ids[1] < ids[2])

	records, err := store.RecordsForIdentity(ctx, "child1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, []string{records[0].SourceLabel, records[1].SourceLabel, records[2].SourceLabel})

	// A bad record anywhere in the group writes nothing.
	_, err = store.AppendBatch(ctx, []Record{sample("child2", "ok.jpg", 1), sample("child2", "bad.jpg")})
	assert.ErrorIs(t, err, ErrSerialization)
	records, err = store.RecordsForIdentity(ctx, "child2")
	require.NoError(t, err)
	assert.Empty(t, records)

	ids, err = store.AppendBatch(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestLoadIdentityFeatureSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AppendBatch(ctx, []Record{
		sample("child1", "a.jpg", 1, 1),
		sample("child1", "b.jpg", 1, 3),
		{IdentityID: "child1", SourceLabel: MeanLabel, Kind: KindMean, Vector: []float64{1, 2}},
		{IdentityID: "child1", SourceLabel: MedianLabel, Kind: KindMedian, Vector: []float64{1, 2}},
	})
	require.NoError(t, err)

	set, err := store.LoadIdentityFeatureSet(ctx, "child1")
	require.NoError(t, err)
	assert.Len(t, set.Samples, 2)
	assert.Equal(t, KindMean, set.Mean.Kind)
	assert.Equal(t, KindMedian, set.Median.Kind)

	// Re-processing appends new aggregates; the latest insert wins.
	_, err = store.AppendBatch(ctx, []Record{
		sample("child1", "c.jpg", 4, 4),
		{IdentityID: "child1", SourceLabel: MeanLabel, Kind: KindMean, Vector: []float64{2, 2.666}},
		{IdentityID: "child1", SourceLabel: MedianLabel, Kind: KindMedian, Vector: []float64{1, 3}},
	})
	require.NoError(t, err)
	set, err = store.LoadIdentityFeatureSet(ctx, "child1")
	require.NoError(t, err)
	assert.Len(t, set.Samples, 3)
	assert.Equal(t, []float64{2, 2.666}, set.Mean.Vector)
	assert.Equal(t, []float64{1, 3}, set.Median.Vector)
}

func TestLoadIdentityFeatureSetMissingAggregate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, sample("child1", "a.jpg", 1, 1))
	require.NoError(t, err)

	_, err = store.LoadIdentityFeatureSet(ctx, "child1")
	assert.ErrorIs(t, err, ErrMissingAggregate)
	var me *MissingAggregateError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "child1", me.IdentityID)
	assert.Equal(t, KindMean, me.Kind)

	_, err = store.Append(ctx, Record{IdentityID: "child1", SourceLabel: MeanLabel, Kind: KindMean, Vector: []float64{1, 1}})
	require.NoError(t, err)
	_, err = store.LoadIdentityFeatureSet(ctx, "child1")
	require.ErrorAs(t, err, &me)
	assert.Equal(t, KindMedian, me.Kind)
}

func TestRecordsForIdentityCorruptBlob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.DB().ExecContext(ctx, `INSERT INTO feature_records(identity_id, vector, source_label, kind) VALUES('child1', X'010203', 'bad.jpg', 'Sample')`)
	require.NoError(t, err)

	_, err = store.RecordsForIdentity(ctx, "child1")
	assert.ErrorIs(t, err, ErrSerialization)
	var se *SerializationError
	require.ErrorAs(t, err, &se)
	assert.NotZero(t, se.RecordID)
}

func TestUnknownKindIsSkipped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	blob := []byte{0, 0, 0, 0, 0, 0, 240, 63} // 1.0
	_, err := store.DB().ExecContext(ctx, `INSERT INTO feature_records(identity_id, vector, source_label, kind) VALUES
		('child1', ?, 'legacy', 'Atomic'),
		('child1', ?, 'average', 'Mean'),
		('child1', ?, 'median', 'Median')`, blob, blob, blob)
	require.NoError(t, err)

	set, err := store.LoadIdentityFeatureSet(ctx, "child1")
	require.NoError(t, err)
	assert.Empty(t, set.Samples)
	assert.Equal(t, []float64{1}, set.Mean.Vector)
}

func TestIdentitiesAndScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"child2", "child1", "child2"} {
		_, err := store.Append(ctx, sample(id, id+".jpg", 1))
		require.NoError(t, err)
	}
	ids, err := store.Identities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"child1", "child2"}, ids)

	var seen []string
	require.NoError(t, store.Scan(ctx, func(r Record) error {
		seen = append(seen, r.IdentityID)
		return nil
	}))
	assert.Equal(t, []string{"child2", "child1", "child2"}, seen)
}

func TestStorageErrorOnClosedDB(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.DB().Close())

	_, err := store.Append(context.Background(), sample("child1", "a.jpg", 1))
	assert.ErrorIs(t, err, ErrStorage)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "child1", se.IdentityID)
}
