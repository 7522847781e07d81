package checker

// counties is the North Texas coverage area of the radar network, uppercased
// to match the CZ_NAME column of the NOAA CSVs.
var counties = map[string]struct{}{
	"BOSQUE":    {},
	"CLAY":      {},
	"COLLIN":    {},
	"COOKE":     {},
	"DALLAS":    {},
	"DENTON":    {},
	"ELLIS":     {},
	"ERATH":     {},
	"FANNIN":    {},
	"FREESTONE": {},
	"GRAYSON":   {},
	"HAMILTON":  {},
	"HENDERSON": {},
	"HILL":      {},
	"HOOD":      {},
	"HUNT":      {},
	"JACK":      {},
	"JOHNSON":   {},
	"KAUFMAN":   {},
	"LIMESTONE": {},
	"MCLENNAN":  {},
	"MONTAGUE":  {},
	"NAVARRO":   {},
	"PARKER":    {},
	"ROCKWALL":  {},
	"SOMERVELL": {},
	"TARRANT":   {},
	"WISE":      {},
}

func inCoverageArea(county string) bool {
	_, ok := counties[county]
	return ok
}
