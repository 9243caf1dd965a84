package docstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aep/docsql/api"
)

const (
	maxCollectionLen = 256
	maxIdLen         = 256
)

func decodeDocument(b []byte, doc *api.Document) error {
	if len(b) < 1 {
		return errors.New("empty value stored in database")
	}
	if b[0] != 'j' {
		return errors.New("invalid encoding stored in database")
	}
	dec := json.NewDecoder(bytes.NewReader(b[1:]))
	dec.UseNumber()
	return dec.Decode(doc)
}

func encodeDocument(doc *api.Document) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte{'j'}, b...), nil
}

func checkCollection(collection string) error {
	if collection == "" {
		return fmt.Errorf("%w: collection must not be empty", ErrInvalid)
	}
	if len(collection) > maxCollectionLen {
		return fmt.Errorf("%w: collection must be less than %d bytes", ErrInvalid, maxCollectionLen)
	}
	if strings.IndexByte(collection, 0xff) >= 0 {
		return fmt.Errorf("%w: collection contains invalid byte 0xff", ErrInvalid)
	}
	return nil
}

func checkId(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id must not be empty", ErrInvalid)
	}
	if len(id) > maxIdLen {
		return fmt.Errorf("%w: id must be less than %d bytes", ErrInvalid, maxIdLen)
	}
	if strings.IndexByte(id, 0xff) >= 0 {
		return fmt.Errorf("%w: id contains invalid byte 0xff", ErrInvalid)
	}
	return nil
}

func documentKey(collection string, id string) []byte {
	return []byte("o\xff" + collection + "\xff" + id + "\xff")
}

// collectionRange covers every document key of one collection. Document
// keys never contain 0xff inside a segment, so the id part sorts below the
// end marker.
func collectionRange(collection string) (start []byte, end []byte) {
	start = []byte("o\xff" + collection + "\xff")
	end = append(bytes.Clone(start), 0xff)
	return start, end
}
