package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDamage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{"thousands", "10.00K", 10_000},
		{"millions", "1.5M", 1_500_000},
		{"billions", "2B", 2_000_000_000},
		{"empty", "", 0},
		{"zero K", "0.00K", 0},
		{"no suffix", "500", 500},
		{"unparseable", "N/A", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseDamage(tt.input))
		})
	}
}

func TestParseNoaaTime(t *testing.T) {
	got, err := ParseNoaaTime("09-MAY-19 15:54:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 5, 9, 15, 54, 0, 0, time.UTC), got)

	_, err = ParseNoaaTime("2019-05-09")
	assert.Error(t, err)
}

func validRow() map[string]string {
	return map[string]string{
		"EVENT_ID":          "802129",
		"EVENT_TYPE":        "Flash Flood",
		"BEGIN_DATE_TIME":   "09-MAY-19 15:54:00",
		"END_DATE_TIME":     "09-MAY-19 18:30:00",
		"BEGIN_LAT":         "32.90",
		"BEGIN_LON":         "-97.04",
		"END_LAT":           "32.86",
		"END_LON":           "-97.02",
		"CZ_NAME":           "TARRANT",
		"BEGIN_LOCATION":    "EULESS",
		"END_LOCATION":      "BEDFORD",
		"MAGNITUDE":         "",
		"TOR_F_SCALE":       "",
		"DAMAGE_PROPERTY":   "10.00K",
		"DAMAGE_CROPS":      "0.00K",
		"DEATHS_DIRECT":     "1",
		"DEATHS_INDIRECT":   "0",
		"INJURIES_DIRECT":   "2",
		"INJURIES_INDIRECT": "0",
		"EVENT_NARRATIVE":   "Water rescue near Euless.",
		"EPISODE_NARRATIVE": "Slow-moving storms trained over Tarrant county.",
	}
}

func TestEventFromCSVRow(t *testing.T) {
	event, err := EventFromCSVRow(validRow(), 7)
	require.NoError(t, err)

	assert.Equal(t, int64(7), event.NoaaRecordID)
	assert.Equal(t, int64(802129), event.EventID)
	assert.Equal(t, "Flash Flood", event.Product)
	assert.Equal(t, time.Date(2019, 5, 9, 15, 54, 0, 0, time.UTC), event.Start)
	assert.Equal(t, time.Date(2019, 5, 9, 18, 30, 0, 0, time.UTC), event.End)
	assert.Equal(t, StatusUnmapped, event.Status)
	assert.Equal(t, "TARRANT", event.County)
	require.NotNil(t, event.BeginLat)
	assert.InDelta(t, 32.90, *event.BeginLat, 1e-9)
	assert.Equal(t, int64(10_000), event.DamageProperty)
	assert.Equal(t, int64(0), event.DamageCrops)
	assert.Equal(t, 1, event.DeathsDirect)
	assert.Equal(t, 2, event.InjuriesDirect)
	assert.Nil(t, event.Magnitude)
	require.NotNil(t, event.BeginCity)
	assert.Equal(t, "EULESS", *event.BeginCity)
}

func TestEventFromCSVRow_TornadoMagnitudeFallback(t *testing.T) {
	row := validRow()
	row["EVENT_TYPE"] = "Tornado"
	row["MAGNITUDE"] = ""
	row["TOR_F_SCALE"] = "EF2"

	event, err := EventFromCSVRow(row, 1)
	require.NoError(t, err)
	require.NotNil(t, event.Magnitude)
	assert.Equal(t, "EF2", *event.Magnitude)
}

func TestEventFromCSVRow_MissingCounty(t *testing.T) {
	row := validRow()
	row["CZ_NAME"] = "  "

	event, err := EventFromCSVRow(row, 1)
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", event.County)
}

func TestEventFromCSVRow_BadTimestamp(t *testing.T) {
	row := validRow()
	row["BEGIN_DATE_TIME"] = "not-a-date"

	_, err := EventFromCSVRow(row, 1)
	assert.Error(t, err)
}

func TestEventFromCSVRow_BadEventID(t *testing.T) {
	row := validRow()
	row["EVENT_ID"] = "abc"

	_, err := EventFromCSVRow(row, 1)
	assert.Error(t, err)
}
