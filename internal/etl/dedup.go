package etl

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprinter lets a record supply its own dedup key.
type Fingerprinter interface {
	Fingerprint() string
}

// Fingerprint returns a stable content hash of record. Map keys are encoded in sorted order,
// so equal maps hash equally regardless of insertion order.
func Fingerprint(record any) string {
	if f, ok := record.(Fingerprinter); ok {
		return f.Fingerprint()
	}

	h := sha256.New()
	data, err := json.Marshal(record)
	if err != nil {
		// Unencodable values (channels, funcs) fall back to their printed form.
		fmt.Fprintf(h, "%T:%#v", record, record)
	} else {
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
