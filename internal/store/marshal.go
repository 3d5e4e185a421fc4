package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/vdb/internal/value"
)

// DomainSpec prefixes description hashes. The version suffix enables future
// algorithm migration.
const DomainSpec = "vdb/spec/v1"

// SpecHash computes the content hash of a binding description source.
// Format: SHA256(domain + 0x00 + src)
func SpecHash(src []byte) string {
	h := sha256.New()
	h.Write([]byte(DomainSpec))
	h.Write([]byte{0x00})
	h.Write(src)
	return hex.EncodeToString(h.Sum(nil))
}

// marshalOptions converts run options to canonical JSON TEXT for storage.
func marshalOptions(opts map[string]string) (string, error) {
	m := make(value.Map, len(opts))
	for k, v := range opts {
		m[k] = value.String(v)
	}
	data, err := value.MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("marshal options: %w", err)
	}
	return string(data), nil
}

// unmarshalOptions parses the options column back into a map.
func unmarshalOptions(data string) (map[string]string, error) {
	opts := map[string]string{}
	if data == "" || data == "{}" {
		return opts, nil
	}
	v, err := value.ParseJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	m, ok := v.(value.Map)
	if !ok {
		return nil, fmt.Errorf("unmarshal options: expected object, got %T", v)
	}
	for k, val := range m {
		opts[k] = value.Text(val)
	}
	return opts, nil
}
