package agent

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"sort"

	"github.com/hupe1980/miniclaw/core"
)

// Fingerprint is a canonical digest of a tool call's name and arguments.
type Fingerprint string

// FingerprintOf digests call. Structurally equal arguments produce equal
// fingerprints: object keys are order independent, numbers compare by value
// (1, 1.0 and 1e0 are equal) and empty, null and {} payloads are equivalent.
// Undecodable payloads fall back to their trimmed raw bytes. The call id is
// ignored.
func FingerprintOf(call core.ToolCall) Fingerprint {
	var buf bytes.Buffer

	buf.WriteString(call.Name)
	buf.WriteByte(0)
	canonicalArguments(&buf, call.Arguments)

	sum := sha256.Sum256(buf.Bytes())

	return Fingerprint(hex.EncodeToString(sum[:16]))
}

func canonicalArguments(buf *bytes.Buffer, raw json.RawMessage) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		buf.WriteString("{}")
		return
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		buf.WriteString("raw:")
		buf.Write(trimmed)
		return
	}

	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		buf.WriteString("{}")
		return
	}

	writeCanonical(buf, v)
}

func writeCanonical(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, _ := json.Marshal(val)
		buf.Write(b)
	case json.Number:
		buf.WriteString("n:")
		if r, ok := new(big.Rat).SetString(val.String()); ok {
			buf.WriteString(r.RatString())
		} else {
			buf.WriteString(val.String())
		}
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, item)
		}
		buf.WriteByte(']')
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
			writeCanonical(buf, k)
			buf.WriteByte(':')
			writeCanonical(buf, val[k])
		}
		buf.WriteByte('}')
	}
}

// callCounter tracks how often each fingerprint was requested within a run.
// Counts only grow.
type callCounter map[Fingerprint]int

// observe increments the count of call and returns the new value.
func (c callCounter) observe(call core.ToolCall) int {
	fp := FingerprintOf(call)
	c[fp]++

	return c[fp]
}
