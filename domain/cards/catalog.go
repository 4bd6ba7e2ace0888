// Package cards copies the card catalog JSON document into a relational
// card repository without inserting duplicates.
package cards

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// DefaultHeight is stored for cards that do not declare one.
const DefaultHeight = "400px"

// json sorts map keys on encode, which canonical props rely on.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Card is one row of the card repository.
type Card struct {
	ImportPath string
	Title      string
	Height     string
	// Props is the canonical JSON encoding of the component props.
	Props string
}

// Key identifies a card for duplicate detection.
type Key struct {
	ImportPath string
	Title      string
	Props      string
}

func (c Card) Key() Key { return Key{ImportPath: c.ImportPath, Title: c.Title, Props: c.Props} }

type catalogDoc struct {
	Cards []catalogCard `json:"cards"`
}

type catalogCard struct {
	ImportPath     string              `json:"importPath"`
	Title          string              `json:"title"`
	Height         string              `json:"height"`
	ComponentProps jsoniter.RawMessage `json:"componentProps"`
}

// ErrMalformedCard reports a catalog entry missing a required field.
var ErrMalformedCard = errors.New("cards: malformed card")

// LoadCatalog reads the catalog document at path.
func LoadCatalog(path string) ([]Card, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cards: open catalog: %w", err)
	}
	defer f.Close()
	return DecodeCatalog(f)
}

// DecodeCatalog parses a `{"cards": [...]}` document. A card's title falls
// back to componentProps.title; its height defaults to DefaultHeight.
func DecodeCatalog(r io.Reader) ([]Card, error) {
	var doc catalogDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("cards: decode catalog: %w", err)
	}
	out := make([]Card, 0, len(doc.Cards))
	for i, c := range doc.Cards {
		if c.ImportPath == "" {
			return nil, fmt.Errorf("%w: entry %d has no importPath", ErrMalformedCard, i)
		}
		if len(c.ComponentProps) == 0 {
			return nil, fmt.Errorf("%w: entry %d (%s) has no componentProps", ErrMalformedCard, i, c.ImportPath)
		}
		props, err := CanonicalProps(c.ComponentProps)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d (%s): %w", ErrMalformedCard, i, c.ImportPath, err)
		}
		title := c.Title
		if title == "" {
			title = jsoniter.Get(c.ComponentProps, "title").ToString()
		}
		height := c.Height
		if height == "" {
			height = DefaultHeight
		}
		out = append(out, Card{ImportPath: c.ImportPath, Title: title, Height: height, Props: props})
	}
	return out, nil
}

// CanonicalProps re-encodes a JSON value compactly with object keys sorted,
// so equal props compare equal as strings. Numbers keep their literal text.
func CanonicalProps(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("props: %w", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("props: %w", err)
	}
	return string(b), nil
}
