package models

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewID returns an opaque prefixed id like "key_x1y2...".
func NewID(prefix string) string {
	id, err := gonanoid.Generate(idAlphabet, 24)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%s_%s", prefix, id)
}

// NewEventID returns a time-sortable event id: a fixed-width millisecond
// timestamp followed by a random tail, so lexicographic order matches
// creation order.
func NewEventID() string {
	tail, err := gonanoid.Generate(idAlphabet, 12)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("evt_%013d_%s", time.Now().UTC().UnixMilli(), tail)
}
