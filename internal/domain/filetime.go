package domain

import (
	"path"
	"strings"
	"time"
)

// Filename timestamp layouts per product. All times are UTC.
const (
	hailLayout        = "COMPOSITE_20060102-150405"
	singleRadarLayout = "tx-20060102-150405"
	rainfallLayout    = "20060102_150405"
)

// ParseFileTime extracts the measurement timestamp from a product file
// name using the product's known naming pattern. Returns ok=false for
// names that do not match; callers skip such files rather than fail.
func ParseFileTime(filename, product string) (time.Time, bool) {
	base := strings.TrimSuffix(path.Base(filename), ".gz")
	base = strings.TrimSuffix(base, ".nc")

	switch product {
	case ProductHail:
		return parseUTC(hailLayout, base)
	case ProductSingleRadar:
		return parseSingleRadar(path.Base(filename))
	default:
		// rainfall and generic files share YYYYMMDD_HHMMSS.
		return parseUTC(rainfallLayout, base)
	}
}

// InferFileTime guesses the naming pattern from the file name alone:
// a COMPOSITE_ (hail) name first, then a tx- (single radar) name, then the
// default rainfall pattern. Used for reference files, whose names carry a
// .json suffix over the original product name.
func InferFileTime(filename string) (time.Time, bool) {
	base := strings.TrimSuffix(path.Base(filename), ".json")
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, ".nc")

	switch {
	case strings.Contains(base, "COMPOSITE_"):
		return parseUTC(hailLayout, base)
	case strings.Contains(base, "tx-"):
		return parseSingleRadar(base)
	default:
		return parseUTC(rainfallLayout, base)
	}
}

// parseSingleRadar handles "<site>.tx-YYYYMMDD-HHMMSS[.ext]" names, where
// the timestamp is the second dot-separated field.
func parseSingleRadar(name string) (time.Time, bool) {
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return time.Time{}, false
	}
	return parseUTC(singleRadarLayout, parts[1])
}

func parseUTC(layout, value string) (time.Time, bool) {
	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
