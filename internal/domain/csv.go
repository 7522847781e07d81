package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// noaaTimeLayout matches BEGIN_DATE_TIME / END_DATE_TIME values such as
// "09-MAY-19 15:54:00". time.Parse matches month names case-insensitively.
const noaaTimeLayout = "02-Jan-06 15:04:05"

// ParseNoaaTime parses a Storm Events CSV timestamp.
func ParseNoaaTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(noaaTimeLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse noaa time %q: %w", s, err)
	}
	return t, nil
}

// ParseDamage converts a NOAA damage string to whole dollars.
// "10.00K" → 10000, "1.5M" → 1500000, "" and "0.00K" → 0. Unparseable
// values are treated as zero, matching how NOAA leaves unknown damage blank.
func ParseDamage(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "0.00K" {
		return 0
	}

	multiplier := int64(1)
	switch s[len(s)-1] {
	case 'K':
		multiplier = 1_000
		s = s[:len(s)-1]
	case 'M':
		multiplier = 1_000_000
		s = s[:len(s)-1]
	case 'B':
		multiplier = 1_000_000_000
		s = s[:len(s)-1]
	}

	number, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(number * float64(multiplier))
}

// EventFromCSVRow extracts a NoaaEvent from one Storm Events CSV row
// (column name → value) owned by the given yearly record. Rows with
// unparseable begin/end times are rejected; every other field degrades to
// its zero value.
func EventFromCSVRow(row map[string]string, recordID int64) (NoaaEvent, error) {
	eventID, err := strconv.ParseInt(strings.TrimSpace(row["EVENT_ID"]), 10, 64)
	if err != nil {
		return NoaaEvent{}, fmt.Errorf("parse EVENT_ID %q: %w", row["EVENT_ID"], err)
	}

	start, err := ParseNoaaTime(row["BEGIN_DATE_TIME"])
	if err != nil {
		return NoaaEvent{}, err
	}
	end, err := ParseNoaaTime(row["END_DATE_TIME"])
	if err != nil {
		return NoaaEvent{}, err
	}

	county := strings.TrimSpace(row["CZ_NAME"])
	if county == "" {
		county = "UNKNOWN"
	}

	// Tornadoes report their magnitude on the F-scale column.
	magnitude := row["MAGNITUDE"]
	if magnitude == "" {
		magnitude = row["TOR_F_SCALE"]
	}

	return NoaaEvent{
		NoaaRecordID: recordID,
		EventID:      eventID,
		Product:      row["EVENT_TYPE"],
		Start:        start,
		End:          end,
		Status:       StatusUnmapped,

		BeginLat:  optionalFloat(row["BEGIN_LAT"]),
		BeginLon:  optionalFloat(row["BEGIN_LON"]),
		EndLat:    optionalFloat(row["END_LAT"]),
		EndLon:    optionalFloat(row["END_LON"]),
		County:    county,
		BeginCity: optionalString(row["BEGIN_LOCATION"]),
		EndCity:   optionalString(row["END_LOCATION"]),

		Magnitude:        optionalString(magnitude),
		DamageProperty:   ParseDamage(row["DAMAGE_PROPERTY"]),
		DamageCrops:      ParseDamage(row["DAMAGE_CROPS"]),
		DeathsDirect:     intOrZero(row["DEATHS_DIRECT"]),
		DeathsIndirect:   intOrZero(row["DEATHS_INDIRECT"]),
		InjuriesDirect:   intOrZero(row["INJURIES_DIRECT"]),
		InjuriesIndirect: intOrZero(row["INJURIES_INDIRECT"]),

		EventNarrative:   optionalString(row["EVENT_NARRATIVE"]),
		EpisodeNarrative: optionalString(row["EPISODE_NARRATIVE"]),
	}, nil
}

func optionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func optionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func intOrZero(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}
