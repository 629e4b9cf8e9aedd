package license

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// Artifact is the distributable license file: exactly two standard base64
// string fields.
type Artifact struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type wireArtifact struct {
	Payload   *string `json:"payload"`
	Signature *string `json:"signature"`
}

// ParseArtifact reads a .dat/.json license file. Extra or missing fields are
// rejected.
func ParseArtifact(data []byte) (Artifact, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireArtifact
	if err := dec.Decode(&w); err != nil {
		return Artifact{}, malformed("license file is not a valid artifact: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Artifact{}, malformed("license file has trailing data")
	}
	if w.Payload == nil || w.Signature == nil {
		return Artifact{}, malformed("license file must contain payload and signature")
	}
	return Artifact{Payload: *w.Payload, Signature: *w.Signature}, nil
}

// MarshalFile renders the artifact as the indented JSON written to .dat files.
func (a Artifact) MarshalFile() ([]byte, error) {
	b, err := json.MarshalIndent(a, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
