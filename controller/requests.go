package controller

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// RequestType selects what a Request asks the controller to do
type RequestType string

const (
	StartPatternScan      RequestType = "start-pattern-scan"
	StartDigest           RequestType = "start-digest"
	CalculateDigestInline RequestType = "calculate-digest-inline"
	CancelRequest         RequestType = "cancel"
	ResetRequest          RequestType = "reset"
	DescribeRequest       RequestType = "init"

	// StopRequest is accepted as another name for cancel
	StopRequest RequestType = "stop"
)

// ErrUnknownRequest rejects a request whose type is missing or not recognised
var ErrUnknownRequest = errors.New("unknown request type")

// Request is one message received at the message boundary. Only the fields used by Type are read.
type Request struct {
	Type RequestType `json:"type"`

	// Path or URL of the source for start requests
	Source string `json:"source,omitempty"`

	// start-pattern-scan
	PatternBytes ByteList `json:"patternBytes,omitempty"`
	StartOffset  int64    `json:"startOffset,omitempty"`

	// start-pattern-scan and start-digest; 0 uses the configured default
	ChunkSize int `json:"chunkSize,omitempty"`

	// start-digest and calculate-digest-inline
	Algorithm string `json:"algorithm,omitempty"`
	// nil uses the configured default
	PreferAccelerated *bool `json:"preferAccelerated,omitempty"`

	// calculate-digest-inline; Text is hashed as UTF-8 when Bytes is empty
	Bytes ByteList `json:"bytes,omitempty"`
	Text  string   `json:"text,omitempty"`
}

// ByteList is a byte slice that is written in JSON as an array of numbers, as a browser would send a Uint8Array.
// It also accepts a hex string when decoding.
type ByteList []byte

func (b ByteList) MarshalJSON() ([]byte, error) {
	values := make([]int, len(b))
	for i, v := range b {
		values[i] = int(v)
	}
	return json.Marshal(values)
}

func (b *ByteList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		decoded, err := hex.DecodeString(strings.TrimPrefix(strings.ReplaceAll(s, " ", ""), "0x"))
		if err != nil {
			return errors.Wrap(err, "byte list string must be hex")
		}
		*b = decoded
		return nil
	}

	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return errors.Wrap(err, "byte list must be an array of numbers")
	}

	result := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return errors.Errorf("byte list value %d at index %d is out of range", v, i)
		}
		result[i] = byte(v)
	}

	*b = result
	return nil
}

// ParseRequest decodes a JSON request
func ParseRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, errors.Wrap(err, "decoding request")
	}
	return r, nil
}
