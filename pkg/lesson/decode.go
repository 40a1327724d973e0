package lesson

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Decode reads one or more lesson definitions from a YAML stream (documents
// separated by "---") and validates each of them. Unknown fields are
// rejected.
func Decode(r io.Reader) ([]*Lesson, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var out []*Lesson
	for {
		var def Definition
		err := dec.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("lesson: decode document %d: %w", len(out)+1, err)
		}
		l, err := New(def)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// LoadFile reads and validates the lessons in the YAML file at path.
func LoadFile(path string) ([]*Lesson, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lesson: read %q: %w", path, err)
	}
	lessons, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("lesson: %s: %w", path, err)
	}
	return lessons, nil
}

// Encode writes the definitions of lessons to w as a YAML stream.
func Encode(w io.Writer, lessons ...*Lesson) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, l := range lessons {
		if err := enc.Encode(l.Definition()); err != nil {
			return fmt.Errorf("lesson: encode %q: %w", l.ID, err)
		}
	}
	return enc.Close()
}
