package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"partsmarket/config"
	"partsmarket/internal/cache"
)

func TestDisabledCache(t *testing.T) {
	c, err := cache.NewRedisCache(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	require.False(t, c.Enabled())
	require.Nil(t, c.Client())

	var v map[string]int
	require.ErrorIs(t, c.Get(context.Background(), "k", &v), cache.ErrDisabled)
	require.ErrorIs(t, c.Set(context.Background(), "k", 1, time.Minute), cache.ErrDisabled)
	require.NoError(t, c.Close())
}

func TestDashboardKey(t *testing.T) {
	id := uuid.MustParse("5f0c1c7e-2a4b-4d8e-9a53-8f1a3b6c2d11")
	month := time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "dashboard:5f0c1c7e-2a4b-4d8e-9a53-8f1a3b6c2d11:2026-03", cache.DashboardKey(id, month))
}
