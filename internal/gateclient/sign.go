// Package gateclient implements the Brain-side Gate Client (spec 4.G):
// canonical JSON signing, the signed HTTPS proposal call, and the 60s
// heartbeat. Grounded on original_source/brain/src/gatekeeper_client.py
// (_sign_payload, send_proposal) for the exact canonical-signing
// algorithm and status-code mapping.
package gateclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// CanonicalJSON recursively sorts object keys and marshals with
// compact separators, matching Python's
// json.dumps(obj, sort_keys=True, separators=(',', ':')). Arrays are
// left in source order; only object keys are sorted (spec 6, 9).
func CanonicalJSON(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// normalize round-trips v through encoding/json to get a generic
// any-typed tree (map[string]any / []any / scalars), then rebuilds
// maps as orderedMap so Marshal emits sorted keys deterministically.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	return sortTree(generic), nil
}

func sortTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return orderedMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortTree(e)
		}
		return out
	default:
		return v
	}
}

// orderedMap marshals as a JSON object with keys in sorted order.
type orderedMap map[string]any

func (m orderedMap) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		vb, err := json.Marshal(sortTree(m[k]))
		if err != nil {
			return nil, err
		}
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Sign computes the lowercase hex HMAC-SHA256 of payload using secret.
func Sign(payload []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify constant-time compares sig against the HMAC-SHA256 of
// payload under secret (spec 4.H step 2).
func Verify(payload []byte, secret []byte, sig string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(sig))
}
