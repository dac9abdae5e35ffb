package frame

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TransformationJMSMapJSON marks a frame whose body is a JSON encoded map,
// as produced by ActiveMQ for JMS MapMessage payloads.
const TransformationJMSMapJSON = "jms-map-json"

const hdrTransformation = "transformation"

// IsMapFrame reports whether the frame declares the jms-map-json body
// transformation. The header value is matched case-insensitively.
func (f *Frame) IsMapFrame() bool {
	v, ok := f.Header.Get(hdrTransformation)
	return ok && strings.EqualFold(v, TransformationJMSMapJSON)
}

// MapBody decodes the frame body as a JSON map. The raw body is left
// untouched.
func (f *Frame) MapBody() (map[string]any, error) {
	m := make(map[string]any)
	if err := json.Unmarshal(f.Body, &m); err != nil {
		return nil, fmt.Errorf("frame: decoding jms-map-json body: %w", err)
	}
	return m, nil
}

// NewMapFrame builds a frame carrying a JSON encoded map body together with
// the transformation header.
func NewMapFrame(command string, m map[string]any) (*Frame, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("frame: encoding jms-map-json body: %w", err)
	}
	f := New(command, body)
	f.Header.Set(hdrTransformation, TransformationJMSMapJSON)
	return f, nil
}
