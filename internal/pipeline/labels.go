package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Label prefixes.
const (
	HeavyPrefix = "HC"
	LightPrefix = "LC"
)

// LabelMap maps sequence ids to display labels, keeping insertion order.
// It serializes as a JSON object in that order.
type LabelMap struct {
	ids    []string
	labels map[string]string
}

// AssignLabels labels ids "<prefix>-1", "<prefix>-2", ... in order of first
// appearance. Repeated ids keep their first label.
func AssignLabels(prefix string, ids []string) LabelMap {
	var m LabelMap
	for _, id := range ids {
		if _, ok := m.labels[id]; ok {
			continue
		}
		m.Set(id, prefix+"-"+strconv.Itoa(len(m.ids)+1))
	}
	return m
}

// Set adds or replaces the label for id.
func (m *LabelMap) Set(id, label string) {
	if m.labels == nil {
		m.labels = make(map[string]string)
	}
	if _, ok := m.labels[id]; !ok {
		m.ids = append(m.ids, id)
	}
	m.labels[id] = label
}

// Label returns the label for id.
func (m LabelMap) Label(id string) (string, bool) {
	l, ok := m.labels[id]
	return l, ok
}

// IDs returns the ids in insertion order.
func (m LabelMap) IDs() []string {
	return append([]string(nil), m.ids...)
}

// Labels returns the labels in insertion order.
func (m LabelMap) Labels() []string {
	out := make([]string, len(m.ids))
	for i, id := range m.ids {
		out[i] = m.labels[id]
	}
	return out
}

// Len returns the number of labelled ids.
func (m LabelMap) Len() int {
	return len(m.ids)
}

// MarshalJSON implements json.Marshaler.
func (m LabelMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range m.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.labels[id])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving key order.
func (m *LabelMap) UnmarshalJSON(data []byte) error {
	*m = LabelMap{}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode label map: %w", err)
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decode label map: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode label map: %w", err)
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode label map: unexpected key %v", tok)
		}
		var label string
		if err := dec.Decode(&label); err != nil {
			return fmt.Errorf("decode label map value for %q: %w", id, err)
		}
		m.Set(id, label)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode label map: %w", err)
	}
	return nil
}
