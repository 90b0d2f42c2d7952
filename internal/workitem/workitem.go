// Package workitem encodes crawl work items to and from the broker wire format.
package workitem

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ContentType of encoded message bodies
const ContentType = "application/json"

var (
	// ErrEmptyMessage is returned for a delivery without a body
	ErrEmptyMessage = errors.New("message body is empty")

	// ErrMalformedMessage is returned when the body is not a valid work item
	ErrMalformedMessage = errors.New("malformed work item message")
)

// Item is one key to resolve within a crawl job
type Item struct {
	JobID   string `json:"job_id"`
	ItemKey string `json:"item_key"`
}

// Message is an encoded item ready for the broker. ID is the dedup key
// recommended to the broker, one per (job_id, item_key).
type Message struct {
	ID   string
	Body []byte
}

// DedupKey returns the broker message id for the item
func (i Item) DedupKey() string {
	return i.JobID + "-" + i.ItemKey
}

// Encode serializes the item
func Encode(item Item) (Message, error) {
	if item.JobID == "" || item.ItemKey == "" {
		return Message{}, fmt.Errorf("%w: job_id and item_key are required", ErrMalformedMessage)
	}

	body, err := json.Marshal(item)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal work item: %w", err)
	}

	return Message{ID: item.DedupKey(), Body: body}, nil
}

// Decode parses a message body
func Decode(body []byte) (Item, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Item{}, ErrEmptyMessage
	}

	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if item.JobID == "" || item.ItemKey == "" {
		return Item{}, fmt.Errorf("%w: job_id and item_key are required", ErrMalformedMessage)
	}

	return item, nil
}
