// Package idempotency derives the stable key that deduplicates logical
// submissions. Two submissions with the same application, user, and payload
// must always produce the same key, regardless of call order, network
// retries, or the order in which JSON object keys were serialized.
//
// Canonicalization is full-depth: object keys are sorted recursively at
// every nesting level, not only at the top. Array element order is
// significant and preserved. Numbers keep their original JSON
// representation (1.0 and 1 are distinct), so the key is a function of the
// bytes the client actually sent, normalized only for key order and
// whitespace.
package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMissingApplicationID is returned when the application ID is empty.
	ErrMissingApplicationID = errors.New("idempotency: missing application id")
	// ErrMissingUserID is returned when the user ID is empty.
	ErrMissingUserID = errors.New("idempotency: missing user id")
)

// fieldSep separates the key components before hashing. A non-printable
// separator prevents ambiguity between ("ab","c") and ("a","bc").
const fieldSep = "\x1f"

// Key derives the idempotency key for a logical submission: a hex-encoded
// SHA-256 digest over (applicationID, userID, canonicalized data).
// An empty or nil data payload is valid and canonicalizes to "null".
func Key(applicationID, userID string, data json.RawMessage) (string, error) {
	if strings.TrimSpace(applicationID) == "" {
		return "", ErrMissingApplicationID
	}
	if strings.TrimSpace(userID) == "" {
		return "", ErrMissingUserID
	}

	canonical, err := Canonicalize(data)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(applicationID))
	h.Write([]byte(fieldSep))
	h.Write([]byte(userID))
	h.Write([]byte(fieldSep))
	h.Write(canonical)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonicalize rewrites a JSON document into its canonical form: all object
// keys recursively sorted, no insignificant whitespace. Returns an error if
// the document is not valid JSON.
func Canonicalize(data json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("null"), nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("idempotency: invalid payload: %w", err)
	}

	// Reject trailing garbage after the first document.
	if dec.More() {
		return nil, fmt.Errorf("idempotency: invalid payload: trailing data")
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// writeCanonical renders a decoded JSON value with recursively sorted keys.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("idempotency: marshal key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case json.Number:
		buf.WriteString(val.String())
		return nil

	default:
		// string, bool, nil.
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("idempotency: marshal value: %w", err)
		}
		buf.Write(b)
		return nil
	}
}
