// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"
	"strings"
	"unicode"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet defines the character set used for the random portion of the ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 12

// New returns a random ID with the given prefix.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Slug returns a readable post ID derived from title: lowercase words
// joined by dashes, followed by a random suffix. An empty title yields only
// the random part.
func Slug(title string) (string, error) {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
	})
	if len(words) > 8 {
		words = words[:8]
	}
	prefix := strings.Join(words, "-")
	if prefix != "" {
		prefix += "-"
	}
	return New(prefix)
}
