// Package transport owns peer-to-peer connectivity: the WebRTC peer
// connection and its ordered, reliable data channel, HTTP signaling,
// chunked binary transfer of audio payloads, and reconnection with
// exponential backoff.
package transport

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Frame type values recognized by the transport. Any other type value is
// forwarded unmodified to the generic message handler.
const (
	FrameClientReady = "client-ready"
	FrameAudioStart  = "audio-start"
	FrameAudioChunk  = "audio-chunk"
	FrameAudioEnd    = "audio-end"
)

// Frame is the unit carried on the data channel. The channel is message
// oriented, so every payload, audio included, rides as one discrete
// JSON frame.
type Frame struct {
	Type  string          `json:"type"`
	Label string          `json:"label,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AudioStart announces an incoming chunked audio payload.
type AudioStart struct {
	Filename    string `json:"filename"`
	FileSize    int    `json:"fileSize"`
	MimeType    string `json:"mimeType"`
	TotalChunks int    `json:"totalChunks"`
}

// AudioChunk carries one base64-encoded slice of the payload. Chunks are
// emitted sequentially; the channel's ordered delivery means indices arrive
// monotonically, and the receiver verifies that as a correctness guard.
type AudioChunk struct {
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	Chunk       string `json:"chunk"`
}

// AudioEnd closes a chunked transfer.
type AudioEnd struct {
	Filename string `json:"filename"`
}

// NewFrame builds a frame with data marshaled into the Data field.
func NewFrame(frameType, label string, data any) (Frame, error) {
	if data == nil {
		return Frame{Type: frameType, Label: label}, nil
	}
	raw, err := sonic.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("transport: marshal %s data: %w", frameType, err)
	}
	return Frame{Type: frameType, Label: label, Data: raw}, nil
}

// EncodeFrame serializes a frame for the data channel.
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := sonic.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// DecodeFrame parses a raw data-channel message into a frame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := sonic.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("transport: decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("transport: frame missing type")
	}
	return f, nil
}

// decodeData parses a frame's Data field into dst.
func decodeData(f Frame, dst any) error {
	if err := sonic.Unmarshal(f.Data, dst); err != nil {
		return fmt.Errorf("transport: decode %s data: %w", f.Type, err)
	}
	return nil
}
