package codec

import (
	"bytes"
	"encoding/json"
)

const indent = "  "

// JSON writes manifests with encoding/json.
//
// Output is indented and newline terminated so manifests stay readable in
// an object store console.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) Name() string { return "json" }
