// Package jsonio holds the file conventions shared by all persisted JSON
// records: strict decoding that rejects unknown fields, and whole-file
// rewrites through a temp file so an aborted run never leaves a truncated
// record to the next one.
package jsonio

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
)

// DecodeStrict unmarshals data into v, rejecting unknown fields.
func DecodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ReadStrict reads and strictly decodes a JSON file.
func ReadStrict(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return DecodeStrict(data, v)
}

// WriteAtomic marshals v with indentation and replaces path in one rename.
func WriteAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
