package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/logflow/logvar/pkg/variability"
)

func sampleEntry() *Entry {
	return &Entry{
		RunID: "run-1",
		Report: variability.Report{
			Name:             "loans",
			Variants:         2,
			EditDistance:     2,
			Entropy:          1.584962500721156,
			UniqueActivities: 3,
			Traces:           3,
			Events:           9,
			Pairs:            1,
		},
		SavedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := Key{Name: "loans", Digest: "00000000deadbeef", Settings: "concept:name"}

	_, ok, err := s.Load(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save(ctx, key, sampleEntry()))

	got, ok, err := s.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sampleEntry().Report, got.Report)
	require.Equal(t, "run-1", got.RunID)

	other := key
	other.Digest = "0000000000000001"
	_, ok, err = s.Load(ctx, other)
	require.NoError(t, err)
	require.False(t, ok, "a changed digest must miss")

	require.NoError(t, s.Delete(ctx, key))
	_, ok, err = s.Load(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.Delete(ctx, key))
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
	require.Equal(t, 0, m.Len())
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultRedisConfig(mr.Addr())
	r, err := NewRedis(context.Background(), cfg)
	require.NoError(t, err)
	defer r.Close()

	exerciseStore(t, r)

	key := Key{Name: "loans", Digest: "d", Settings: "s"}
	require.NoError(t, r.Save(context.Background(), key, sampleEntry()))
	require.True(t, mr.Exists(cfg.Prefix+key.String()))
	require.Greater(t, mr.TTL(cfg.Prefix+key.String()), time.Duration(0))

	keys, err := r.Keys(context.Background(), "loans")
	require.NoError(t, err)
	require.Equal(t, []string{key.String()}, keys)
}

func TestRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultRedisConfig(addr)
	cfg.Timeout = 200 * time.Millisecond
	_, err := NewRedis(context.Background(), cfg)
	require.Error(t, err)
}

func TestKey(t *testing.T) {
	a := Key{Name: "n", Digest: "d", Settings: "x"}
	b := Key{Name: "n", Digest: "d", Settings: "y"}
	require.NotEqual(t, a.String(), b.String())
	require.Equal(t, a.String(), Key{Name: "n", Digest: "d", Settings: "x"}.String())
	require.Len(t, Fingerprint("a", "b"), 16)
	require.NotEqual(t, Fingerprint("a", "b"), Fingerprint("ab"))
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	require.NoError(t, s.Save(context.Background(), Key{}, sampleEntry()))
	_, ok, err := s.Load(context.Background(), Key{})
	require.NoError(t, err)
	require.False(t, ok)
}
