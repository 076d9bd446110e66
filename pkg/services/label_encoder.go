package services

import "fmt"

// LabelEncoder maps category text to its index in Classes and back.
// Classes are stored in the order the encoder was fitted with.
type LabelEncoder struct {
	Column  string   `json:"column,omitempty"`
	Classes []string `json:"classes"`

	index map[string]int
}

// NewLabelEncoder returns an encoder over classes.
func NewLabelEncoder(column string, classes []string) *LabelEncoder {
	e := &LabelEncoder{Column: column, Classes: append([]string(nil), classes...)}
	e.buildIndex()
	return e
}

func (e *LabelEncoder) buildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		if _, dup := e.index[c]; !dup {
			e.index[c] = i
		}
	}
}

// Transform encodes values. An unseen label fails the whole call with EncodingError.
func (e *LabelEncoder) Transform(values []string) ([]int, error) {
	index := e.index
	if index == nil {
		index = make(map[string]int, len(e.Classes))
		for i := len(e.Classes) - 1; i >= 0; i-- {
			index[e.Classes[i]] = i
		}
	}
	out := make([]int, len(values))
	for i, v := range values {
		code, ok := index[v]
		if !ok {
			return nil, &EncodingError{Column: e.Column, Value: v}
		}
		out[i] = code
	}
	return out, nil
}

// InverseTransform decodes codes back to their labels.
func (e *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	out := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(e.Classes) {
			return nil, fmt.Errorf("label code %d out of range [0, %d) for column %q", c, len(e.Classes), e.Column)
		}
		out[i] = e.Classes[c]
	}
	return out, nil
}
