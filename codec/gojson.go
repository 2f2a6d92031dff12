package codec

import gojson "github.com/goccy/go-json"

// GoJSON writes manifests with github.com/goccy/go-json. Its output is
// byte-compatible with JSON.
type GoJSON struct{}

func (GoJSON) Marshal(v any) ([]byte, error) {
	b, err := gojson.MarshalIndentWithOption(v, "", indent, gojson.DisableHTMLEscape())
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

func (GoJSON) Name() string { return "go-json" }
