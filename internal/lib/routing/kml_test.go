package routing

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpool-lk/server/internal/lib/geo"
)

func TestWriteRouteKML(t *testing.T) {
	var buf bytes.Buffer
	err := WriteRouteKML(&buf, "Colombo to Kandy", "94.3 km", []geo.Point{colombo, kandy})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "<LineString>")
	assert.Contains(t, out, "<name>Colombo to Kandy</name>")
	assert.Contains(t, out, "<description>94.3 km</description>")
	// KML orders coordinates lon,lat
	assert.Contains(t, out, "79.8612,6.9271")
	assert.Contains(t, out, "80.6337,7.2906")
}
