package codec_test

import (
	"fmt"
	"log"

	"github.com/ssargent/boarddb/pkg/codec"
)

// ExampleMessageCodec demonstrates encoding and decoding a message
func ExampleMessageCodec() {
	c := codec.NewMessageCodec()

	encoded, err := c.Encode(&codec.Message{ID: 1, Title: "hello", CreatedAt: 42})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Encoded %d bytes\n", len(encoded))

	msg, err := c.Decode(encoded)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("ID: %d\n", msg.ID)
	fmt.Printf("Title: %s\n", msg.Title)
	fmt.Printf("Updated: %t\n", msg.UpdatedAt != nil)

	// Output:
	// Encoded 25 bytes
	// ID: 1
	// Title: hello
	// Updated: false
}
