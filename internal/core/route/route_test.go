package route

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCatalogDefaults(t *testing.T) {
	routes := Catalog(DefaultFlags(), nil, zap.NewNop())
	require.Len(t, routes, 4)

	byName := map[string]Route{}
	for _, rt := range routes {
		byName[rt.Name] = rt
		assert.NotEmpty(t, rt.SubPath, rt.Name)
		assert.NotEmpty(t, rt.Converters, rt.Name)
	}

	assert.Equal(t, 5*24*time.Hour, byName["heart_rate"].Interval)
	assert.Equal(t, 30*24*time.Hour, byName["sleep"].Interval)
	assert.Equal(t, "daily_spo2", byName["spo2"].SubPath)
}

func TestCatalogFlagsDisableRoutes(t *testing.T) {
	flags := Flags{Sleep: true}
	routes := Catalog(flags, nil, zap.NewNop())
	require.Len(t, routes, 1)
	assert.Equal(t, "sleep", routes[0].Name)

	assert.Empty(t, Catalog(Flags{}, nil, zap.NewNop()))
}

func TestCatalogIntervalOverrides(t *testing.T) {
	overrides := map[string]time.Duration{
		"heart_rate": 24 * time.Hour,
		"sleep":      0, // non-positive overrides are ignored
	}
	routes := Catalog(DefaultFlags(), overrides, zap.NewNop())

	byName := map[string]Route{}
	for _, rt := range routes {
		byName[rt.Name] = rt
	}
	assert.Equal(t, 24*time.Hour, byName["heart_rate"].Interval)
	assert.Equal(t, 30*24*time.Hour, byName["sleep"].Interval)
}
