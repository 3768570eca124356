package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
}

func TestCache_SetGet(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)

	require.NoError(t, c.Set("geocode:kandy", location{Name: "Kandy", Lat: 7.2906}, 0, "nominatim"))

	var got location
	found, err := c.Get("geocode:kandy", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Kandy", got.Name)
	assert.Equal(t, 7.2906, got.Lat)

	found, err = c.Get("geocode:galle", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	require.NoError(t, c.Set("short", 1, 10*time.Millisecond, "test"))

	time.Sleep(30 * time.Millisecond)

	var v int
	found, err := c.Get("short", &v)
	require.NoError(t, err)
	assert.False(t, found, "expired entries are misses")
}

func TestCache_UnmarshalError(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	require.NoError(t, c.Set("k", "not a struct", 0, "test"))

	var got location
	found, err := c.Get("k", &got)
	assert.Error(t, err)
	assert.False(t, found)
}

func TestCache_SetUnmarshalable(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	assert.Error(t, c.Set("k", make(chan int), 0, "test"))
}

func TestCache_GetWithMetadata(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	require.NoError(t, c.Set("route:abc", []float64{1, 2}, 0, "routes"))

	var got []float64
	entry, found, err := c.GetWithMetadata("route:abc", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "routes", entry.Source)
	assert.Equal(t, "route:abc", entry.Key)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, []float64{1, 2}, got)

	entry, found, err = c.GetWithMetadata("missing", nil)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, entry)
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	require.NoError(t, c.Set("route:a", 1, 0, "routes"))
	require.NoError(t, c.Set("route:b", 2, 0, "routes"))
	require.NoError(t, c.Set("geocode:x", 3, 0, "nominatim"))

	c.Delete("route:a")
	assert.ElementsMatch(t, []string{"route:b", "geocode:x"}, c.Keys())

	assert.Equal(t, 1, c.DeletePrefix("route:"))
	assert.Equal(t, []string{"geocode:x"}, c.Keys())

	c.Clear()
	assert.Empty(t, c.Keys())
}

func TestCache_Stats(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	require.NoError(t, c.Set("a", 1, 0, "routes"))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set("b", 2, 0, "routes"))
	require.NoError(t, c.Set("c", 3, 0, "nominatim"))

	stats := c.Stats()
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 2, stats.BySource["routes"])
	assert.Equal(t, 1, stats.BySource["nominatim"])
	assert.True(t, stats.OldestEntry.Before(stats.NewestEntry))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "geocode:colombo fort", Key("geocode", "  Colombo   FORT "))
	assert.Equal(t, "route:abc", Key("route", "ABC"))
	assert.Equal(t, "bare", Key("bare"))
}
