package domain

import "sort"

// Storage product labels. These name the top-level prefixes in object
// storage and the product column across all file tables.
const (
	ProductHail         = "hail"
	ProductRainfall     = "rainfall"
	ProductReflectivity = "reflectivity"
	ProductSingleRadar  = "singleradar"
)

// eventProductMap translates a NOAA event category to the storage products
// that cover it. Order matters: the first product is authoritative when a
// single label is needed (combined reference files).
var eventProductMap = map[string][]string{
	"Heavy Snow":        {ProductReflectivity, ProductSingleRadar},
	"Strong Wind":       {ProductReflectivity, ProductSingleRadar},
	"High Wind":         {ProductReflectivity, ProductSingleRadar},
	"Heavy Rain":        {ProductRainfall, ProductReflectivity, ProductSingleRadar},
	"Flash Flood":       {ProductRainfall, ProductReflectivity, ProductSingleRadar},
	"Ice Storm":         {ProductReflectivity, ProductSingleRadar},
	"Flood":             {ProductRainfall, ProductReflectivity, ProductSingleRadar},
	"Thunderstorm Wind": {ProductReflectivity, ProductSingleRadar},
	"Blizzard":          {ProductReflectivity, ProductSingleRadar},
	"Hail":              {ProductHail, ProductReflectivity, ProductSingleRadar},
	"Tornado":           {ProductReflectivity, ProductSingleRadar},
}

// ProductsFor returns the storage products covering a NOAA event category.
func ProductsFor(category string) ([]string, bool) {
	products, ok := eventProductMap[category]
	return products, ok
}

// PrimaryProductFor returns the authoritative storage product for a
// category: the first entry of its mapping.
func PrimaryProductFor(category string) (string, bool) {
	products, ok := eventProductMap[category]
	if !ok || len(products) == 0 {
		return "", false
	}
	return products[0], true
}

// KnownCategories returns the recognized NOAA event categories, sorted.
// The checker uses this to filter CSV rows to event types we can map.
func KnownCategories() []string {
	categories := make([]string, 0, len(eventProductMap))
	for c := range eventProductMap {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}
