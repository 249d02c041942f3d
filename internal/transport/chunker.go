package transport

import (
	"encoding/base64"
	"fmt"
)

// DefaultChunkSize is the payload bytes per audio-chunk frame, kept well
// under common SCTP message-size limits after base64 expansion.
const DefaultChunkSize = 16 * 1024

// SendChunked emits data as one audio-start frame, ceil(len/chunkSize)
// sequential audio-chunk frames, and one audio-end frame, using send for
// each. Chunk payloads are base64 encoded so they ride inside JSON frames.
func SendChunked(send func(Frame) error, filename, mimeType string, data []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	totalChunks := (len(data) + chunkSize - 1) / chunkSize

	start, err := NewFrame(FrameAudioStart, filename, AudioStart{
		Filename:    filename,
		FileSize:    len(data),
		MimeType:    mimeType,
		TotalChunks: totalChunks,
	})
	if err != nil {
		return err
	}
	if err := send(start); err != nil {
		return fmt.Errorf("transport: send audio-start: %w", err)
	}

	for i := 0; i < totalChunks; i++ {
		lo := i * chunkSize
		hi := min(lo+chunkSize, len(data))
		chunk, err := NewFrame(FrameAudioChunk, filename, AudioChunk{
			ChunkIndex:  i,
			TotalChunks: totalChunks,
			Chunk:       base64.StdEncoding.EncodeToString(data[lo:hi]),
		})
		if err != nil {
			return err
		}
		if err := send(chunk); err != nil {
			return fmt.Errorf("transport: send chunk %d/%d: %w", i, totalChunks, err)
		}
	}

	end, err := NewFrame(FrameAudioEnd, filename, AudioEnd{Filename: filename})
	if err != nil {
		return err
	}
	if err := send(end); err != nil {
		return fmt.Errorf("transport: send audio-end: %w", err)
	}
	return nil
}

// Assembler reassembles one chunked transfer at a time. The data channel
// delivers frames in order, so reassembly is append-only, but chunk index
// sequencing is still validated: a gap or repeat means the transfer is
// corrupt and is discarded.
type Assembler struct {
	active      bool
	filename    string
	mimeType    string
	totalChunks int
	nextIndex   int
	buf         []byte
}

// Transfer is a fully reassembled audio payload.
type Transfer struct {
	Filename string
	MimeType string
	Data     []byte
}

// HandleFrame consumes one audio-start/audio-chunk/audio-end frame.
// It returns a non-nil Transfer exactly once per completed payload.
// On a sequencing or decode error the in-flight transfer is dropped and the
// assembler resets, ready for the next audio-start.
func (a *Assembler) HandleFrame(f Frame) (*Transfer, error) {
	switch f.Type {
	case FrameAudioStart:
		var start AudioStart
		if err := decodeData(f, &start); err != nil {
			return nil, err
		}
		if a.active {
			prev := a.filename
			a.reset()
			return nil, fmt.Errorf("transport: audio-start %q while transfer %q in flight", start.Filename, prev)
		}
		a.active = true
		a.filename = start.Filename
		a.mimeType = start.MimeType
		a.totalChunks = start.TotalChunks
		a.nextIndex = 0
		a.buf = make([]byte, 0, start.FileSize)
		return nil, nil

	case FrameAudioChunk:
		if !a.active {
			return nil, fmt.Errorf("transport: audio-chunk with no transfer in flight")
		}
		var chunk AudioChunk
		if err := decodeData(f, &chunk); err != nil {
			a.reset()
			return nil, err
		}
		if chunk.ChunkIndex != a.nextIndex {
			got, want := chunk.ChunkIndex, a.nextIndex
			a.reset()
			return nil, fmt.Errorf("transport: chunk index %d, want %d", got, want)
		}
		raw, err := base64.StdEncoding.DecodeString(chunk.Chunk)
		if err != nil {
			a.reset()
			return nil, fmt.Errorf("transport: chunk %d payload: %w", chunk.ChunkIndex, err)
		}
		a.buf = append(a.buf, raw...)
		a.nextIndex++
		return nil, nil

	case FrameAudioEnd:
		if !a.active {
			return nil, fmt.Errorf("transport: audio-end with no transfer in flight")
		}
		if a.nextIndex != a.totalChunks {
			got, want := a.nextIndex, a.totalChunks
			a.reset()
			return nil, fmt.Errorf("transport: audio-end after %d of %d chunks", got, want)
		}
		tr := &Transfer{Filename: a.filename, MimeType: a.mimeType, Data: a.buf}
		a.reset()
		return tr, nil

	default:
		return nil, fmt.Errorf("transport: frame type %q is not part of a chunked transfer", f.Type)
	}
}

func (a *Assembler) reset() {
	*a = Assembler{}
}
