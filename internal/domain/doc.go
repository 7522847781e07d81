// Package domain models the entities and conventions of the storm data
// archive: NOAA Storm Events records, the NetCDF product files that cover
// them, and the kerchunk-style reference files built over those products.
//
// # Data Sources
//
// Storm events come from the NOAA Storm Events database, published as one
// gzipped CSV per year at
// https://www.ncei.noaa.gov/pub/data/swdi/stormevents/csvfiles/. File names
// encode both the data year and the publication date:
//
//	StormEvents_details-ftp_v1.0_d2019_c20240117.csv.gz
//	                              ^year  ^last modified
//
// Radar and rainfall measurements arrive as NetCDF files from the origin
// file server, organized as <base>/<YYYYMMDD>/<file> per product.
//
// # Product File Naming
//
// Each product encodes its measurement timestamp differently:
//
//	hail:        COMPOSITE_20230615-143000.nc
//	rainfall:    20230615_143000.nc (or .nc.gz)
//	singleradar: <site>.tx-20230615-143000.<ext>
//
// [ParseFileTime] parses with a known product; [InferFileTime] guesses the
// pattern from the name alone (used when only a reference-file name is
// available). Both return ok=false for unrecognized names instead of an
// error: a file we cannot date is skipped, never fatal.
//
// # Event Categories and Products
//
// One NOAA event category can be covered by several measurement products
// (a Flood event has rainfall, reflectivity, and single-radar data). The
// static mapping lives in [ProductsFor]; the first product listed for a
// category is authoritative when a single label is needed, e.g. for a
// combined reference file.
//
// # Damage Encoding
//
// NOAA encodes dollar amounts as "<number><suffix>" with K/M/B suffixes:
// "10.00K" is $10,000, "1.5M" is $1,500,000. Empty and "0.00K" both mean
// zero. See [ParseDamage].
//
// # Event Lifecycle
//
// Events are ingested UNMAPPED, flip to MAPPED once their overlapping
// product files are linked, and are reserved MODIFIED for re-ingestion
// drift detected by the checker.
package domain
