package license

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"license-controlplane/pkg/errutil"
)

// TimeLayout is the only timestamp form in canonical payloads.
const TimeLayout = "2006-01-02T15:04:05Z"

// Canonicalize renders p as compact JSON with keys sorted at every level,
// UTC second-precision timestamps, base-10 integers and notes omitted when
// empty. Equal payloads always produce identical bytes.
func Canonicalize(p Payload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, errutil.BadRequest(err.Error(), ErrInvalidRequest)
	}

	obj := map[string]any{
		"kid":      p.Kid,
		"customer": p.Customer,
		"edition":  string(p.Edition),
		"issuedAt": p.IssuedAt.UTC().Format(TimeLayout),
		"expires":  p.Expires.UTC().Format(TimeLayout),
		"seats":    int64(p.Seats),
		"fingerprint": map[string]any{
			"fingerprintId": p.Fingerprint.FingerprintID,
		},
	}
	if p.Notes != "" {
		obj["notes"] = p.Notes
	}

	buf := &bytes.Buffer{}
	writeCanonical(buf, obj)
	return buf.Bytes(), nil
}

// Encode returns the standard base64 of the canonical bytes.
func Encode(p Payload) (string, error) {
	b, err := Canonicalize(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// wirePayload mirrors the payload JSON with pointers so missing fields can be
// told apart from zero values.
type wirePayload struct {
	Kid         *string          `json:"kid"`
	Customer    *string          `json:"customer"`
	Edition     *string          `json:"edition"`
	IssuedAt    *string          `json:"issuedAt"`
	Expires     *string          `json:"expires"`
	Seats       *json.Number     `json:"seats"`
	Fingerprint *wireFingerprint `json:"fingerprint"`
	Notes       *string          `json:"notes"`
}

type wireFingerprint struct {
	FingerprintID *string `json:"fingerprintId"`
}

func malformed(format string, args ...any) error {
	return errutil.UnprocessableEntity(fmt.Sprintf(format, args...), ErrMalformedPayload)
}

// Decode parses a base64 payload. It rejects unknown or missing fields, wrong
// shapes and any bytes that are not exactly the canonical encoding of the
// payload they decode to.
func Decode(s string) (Payload, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil || containsLineBreak(s) {
		return Payload{}, malformed("payload is not valid standard base64")
	}
	return DecodeBytes(raw)
}

// DecodeBytes is Decode without the base64 layer.
func DecodeBytes(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var w wirePayload
	if err := dec.Decode(&w); err != nil {
		return Payload{}, malformed("payload is not a valid license object: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Payload{}, malformed("payload has trailing data")
	}

	p, err := w.payload()
	if err != nil {
		return Payload{}, malformed("%v", err)
	}
	if err := p.Validate(); err != nil {
		return Payload{}, malformed("%v", err)
	}

	canonical, err := Canonicalize(p)
	if err != nil {
		return Payload{}, malformed("%v", err)
	}
	if !bytes.Equal(canonical, raw) {
		return Payload{}, malformed("payload is not in canonical form")
	}
	return p, nil
}

func (w wirePayload) payload() (Payload, error) {
	switch {
	case w.Kid == nil:
		return Payload{}, missing("kid")
	case w.Customer == nil:
		return Payload{}, missing("customer")
	case w.Edition == nil:
		return Payload{}, missing("edition")
	case w.IssuedAt == nil:
		return Payload{}, missing("issuedAt")
	case w.Expires == nil:
		return Payload{}, missing("expires")
	case w.Seats == nil:
		return Payload{}, missing("seats")
	case w.Fingerprint == nil || w.Fingerprint.FingerprintID == nil:
		return Payload{}, missing("fingerprint.fingerprintId")
	}

	seats, err := strconv.ParseInt(w.Seats.String(), 10, 32)
	if err != nil {
		return Payload{}, fmt.Errorf("seats must be a positive integer")
	}

	issuedAt, err := time.Parse(TimeLayout, *w.IssuedAt)
	if err != nil {
		return Payload{}, fmt.Errorf("issuedAt must be formatted as %s", TimeLayout)
	}
	expires, err := time.Parse(TimeLayout, *w.Expires)
	if err != nil {
		return Payload{}, fmt.Errorf("expires must be formatted as %s", TimeLayout)
	}

	p := Payload{
		Kid:         *w.Kid,
		Customer:    *w.Customer,
		Edition:     Edition(*w.Edition),
		IssuedAt:    issuedAt.UTC(),
		Expires:     expires.UTC(),
		Seats:       int(seats),
		Fingerprint: Fingerprint{FingerprintID: *w.Fingerprint.FingerprintID},
	}
	if w.Notes != nil {
		p.Notes = *w.Notes
	}
	return p, nil
}

func missing(field string) error {
	return fmt.Errorf("%s is required", field)
}

func containsLineBreak(s string) bool {
	return bytes.ContainsAny([]byte(s), "\r\n")
}

func writeCanonical(buf *bytes.Buffer, value any) {
	switch v := value.(type) {
	case string:
		writeString(buf, v)
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			writeCanonical(buf, v[k])
		}
		buf.WriteByte('}')
	}
}

var hexLower = []byte("0123456789abcdef")

// writeString escapes only what JSON requires: quote, backslash and control
// characters. Everything else, HTML characters included, is written as UTF-8.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexLower[r>>4])
				buf.WriteByte(hexLower[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
