package labels

import (
	"bytes"
	"errors"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrNothingToCombine is returned when none of the input documents could be
// parsed.
var ErrNothingToCombine = errors.New("no valid label documents to combine")

// Combine concatenates the pages of multiple label documents into one
// document, in input order. Inputs that fail to parse are skipped; Combine
// fails only when zero inputs are usable.
func Combine(docs [][]byte) ([]byte, error) {
	var valid [][]byte
	for _, doc := range docs {
		if _, err := PageCount(doc); err != nil {
			continue
		}
		valid = append(valid, doc)
	}

	if len(valid) == 0 {
		return nil, ErrNothingToCombine
	}
	if len(valid) == 1 {
		return valid[0], nil
	}

	readers := make([]io.ReadSeeker, len(valid))
	for i, doc := range valid {
		readers[i] = bytes.NewReader(doc)
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, nil); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
