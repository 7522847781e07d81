package kerchunker

import (
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// refDocument is the reference-file format: a version marker and a flat map
// from zarr key to either inline data or a [url, offset, length] pointer.
// Values pass through opaquely; only the keys are rewritten when combining.
type refDocument struct {
	Version int                        `json:"version"`
	Refs    map[string]json.RawMessage `json:"refs"`
}

func parseRefDocument(data []byte) (refDocument, error) {
	var doc refDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return refDocument{}, fmt.Errorf("parse reference document: %w", err)
	}
	if doc.Refs == nil {
		return refDocument{}, fmt.Errorf("reference document has no refs")
	}
	return doc, nil
}

// isMetadataKey reports whether a zarr key holds array or group metadata
// rather than chunk data (.zgroup, .zattrs, var/.zarray, ...).
func isMetadataKey(key string) bool {
	return strings.HasPrefix(path.Base(key), ".z")
}

// combineDocs merges per-file reference documents, ordered by their file
// timestamps, into one document with a leading datetime axis. Group and
// array metadata comes from the first document; each chunk key gains the
// document's position on the new axis ("var/0.0" in file i becomes
// "var/i.0.0").
func combineDocs(times []time.Time, docs []refDocument) (refDocument, error) {
	if len(docs) == 0 {
		return refDocument{}, fmt.Errorf("no documents to combine")
	}
	if len(times) != len(docs) {
		return refDocument{}, fmt.Errorf("got %d timestamps for %d documents", len(times), len(docs))
	}

	combined := refDocument{Version: 1, Refs: make(map[string]json.RawMessage)}

	for i, doc := range docs {
		for key, value := range doc.Refs {
			if isMetadataKey(key) || !strings.Contains(key, "/") {
				if i == 0 {
					combined.Refs[key] = value
				}
				continue
			}
			slash := strings.LastIndex(key, "/")
			newKey := key[:slash+1] + strconv.Itoa(i) + "." + key[slash+1:]
			combined.Refs[newKey] = value
		}
	}

	if err := addDatetimeAxis(combined.Refs, times); err != nil {
		return refDocument{}, err
	}
	return combined, nil
}

// addDatetimeAxis writes the datetime coordinate array, inlined as RFC 3339
// strings in file order.
func addDatetimeAxis(refs map[string]json.RawMessage, times []time.Time) error {
	n := len(times)

	zarray, err := json.Marshal(map[string]any{
		"chunks":      []int{n},
		"compressor":  nil,
		"dtype":       "<M8[ns]",
		"fill_value":  nil,
		"filters":     nil,
		"order":       "C",
		"shape":       []int{n},
		"zarr_format": 2,
	})
	if err != nil {
		return fmt.Errorf("encode datetime metadata: %w", err)
	}
	refs["datetime/.zarray"] = zarray

	zattrs, err := json.Marshal(map[string]any{
		"_ARRAY_DIMENSIONS": []string{"datetime"},
	})
	if err != nil {
		return fmt.Errorf("encode datetime attributes: %w", err)
	}
	refs["datetime/.zattrs"] = zattrs

	stamps := make([]string, n)
	for i, t := range times {
		stamps[i] = t.UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(stamps)
	if err != nil {
		return fmt.Errorf("encode datetime values: %w", err)
	}
	refs["datetime/0"] = data

	return nil
}
