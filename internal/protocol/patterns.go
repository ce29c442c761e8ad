package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// PatternIdentifiers is one record of a listPrograms reply.
type PatternIdentifiers struct {
	ID   string
	Name string
}

// PatternIterator walks the "id\tname\n" records of a listPrograms reply.
// Use it like bufio.Scanner:
//
//	for it.Next() {
//	    p := it.Pattern()
//	}
//	if err := it.Err(); err != nil { ... }
type PatternIterator struct {
	r       *bufio.Reader
	current PatternIdentifiers
	err     error
}

// NewPatternIterator reads records from r.
func NewPatternIterator(r io.Reader) *PatternIterator {
	return &PatternIterator{r: bufio.NewReader(r)}
}

// Next advances to the next record. It returns false at the end of the data
// or on a malformed record, in which case Err is set.
func (it *PatternIterator) Next() bool {
	if it.err != nil {
		return false
	}

	id, err := it.r.ReadString('\t')
	if err != nil {
		if errors.Is(err, io.EOF) && id == "" {
			return false
		}
		if errors.Is(err, io.EOF) {
			it.err = fmt.Errorf("malformed pattern record %q: missing name", id)
		} else {
			it.err = err
		}
		return false
	}

	name, err := it.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		it.err = err
		return false
	}

	it.current = PatternIdentifiers{
		ID:   strings.TrimSuffix(id, "\t"),
		Name: strings.TrimSuffix(name, "\n"),
	}
	return true
}

// Pattern returns the record Next just read.
func (it *PatternIterator) Pattern() PatternIdentifiers {
	return it.current
}

// Err returns the first error encountered, if any.
func (it *PatternIterator) Err() error {
	return it.err
}

// previewIDTerminator separates the pattern id from the JPEG in a preview
// image reply.
const previewIDTerminator = 0xFF

// SplitPreviewImage reads the leading pattern id of a preview image reply
// and returns it with a reader positioned at the start of the JPEG.
func SplitPreviewImage(r io.Reader) (string, io.Reader, error) {
	br := bufio.NewReader(r)
	id, err := br.ReadBytes(previewIDTerminator)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil, fmt.Errorf("preview image has no id terminator")
		}
		return "", nil, err
	}
	return string(id[:len(id)-1]), br, nil
}
