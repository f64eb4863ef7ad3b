package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrMalformedManifest indicates the manifest template is not a JSON object
// of the expected shape.
var ErrMalformedManifest = errors.New("malformed manifest")

// ManifestUpdate lists the fields rewritten in the staged manifest.
type ManifestUpdate struct {
	Version        string
	SetVersion     bool // false leaves the template's version untouched
	InstallCommand string
}

// RewriteManifest loads the manifest at path, applies update and writes it
// back with the original key order and two-space indentation. Fields other
// than version and scripts.install pass through unchanged.
func RewriteManifest(path string, update ManifestUpdate) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	out, err := applyManifestUpdate(data, update)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

func applyManifestUpdate(data []byte, update ManifestUpdate) ([]byte, error) {
	doc, err := parseObject(data)
	if err != nil {
		return nil, err
	}

	if update.SetVersion {
		if err := doc.set("version", update.Version); err != nil {
			return nil, err
		}
	}

	scripts := &orderedObject{values: make(map[string]json.RawMessage)}
	if raw, ok := doc.values["scripts"]; ok {
		scripts, err = parseObject(raw)
		if err != nil {
			return nil, fmt.Errorf("scripts: %w", err)
		}
	}
	if err := scripts.set("install", update.InstallCommand); err != nil {
		return nil, err
	}
	if err := doc.setRaw("scripts", scripts.encode()); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, doc.encode(), "", "  "); err != nil {
		return nil, fmt.Errorf("formatting manifest: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// orderedObject is a JSON object that remembers the order its keys were
// loaded in. Values are kept as raw JSON.
type orderedObject struct {
	keys   []string
	values map[string]json.RawMessage
}

func parseObject(data []byte) (*orderedObject, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedManifest)
	}

	obj := &orderedObject{values: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", ErrMalformedManifest, tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: value of %q: %v", ErrMalformedManifest, key, err)
		}
		if _, seen := obj.values[key]; !seen {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = raw
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedManifest)
	}
	return obj, nil
}

func (o *orderedObject) set(key string, value any) error {
	raw, err := marshalNoEscape(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return o.setRaw(key, raw)
}

func (o *orderedObject) setRaw(key string, raw []byte) error {
	if !json.Valid(raw) {
		return fmt.Errorf("%w: invalid value for %q", ErrMalformedManifest, key)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = raw
	return nil
}

// encode writes the object compactly in key order.
func (o *orderedObject) encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := marshalNoEscape(k)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(o.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
