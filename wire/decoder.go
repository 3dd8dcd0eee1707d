// Package wire decodes the newline-delimited JSON event stream emitted
// by the generation backend.
package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/imagine/types"
)

// MaxLineSize bounds a single stream record (64 MiB). Variant records
// carry base64 image payloads and routinely run into the megabytes.
const MaxLineSize = 64 * 1024 * 1024

// MalformedLineMessage is the diagnostic surfaced as a synthetic error
// event when a stream line is not valid JSON. The stream itself keeps
// decoding; one bad record never poisons the rest of the run.
const MalformedLineMessage = "malformed stream record"

// DecodeErrorKind classifies stream decoding errors.
type DecodeErrorKind int

const (
	// DecodeErrorRead indicates the underlying reader failed mid-stream.
	DecodeErrorRead DecodeErrorKind = iota
	// DecodeErrorTooLarge indicates a record exceeding MaxLineSize.
	DecodeErrorTooLarge
)

// DecodeError represents a stream decoding error.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true if the error is a stream decoding error.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// LineDecoder decodes newline-delimited JSON event records from a stream.
// Records split across reads are buffered until the terminating newline
// arrives; a non-empty trailing record without a newline is decoded at EOF.
type LineDecoder struct {
	reader *bufio.Reader
}

// NewLineDecoder creates a decoder over the raw stream body.
func NewLineDecoder(r io.Reader) *LineDecoder {
	return &LineDecoder{reader: bufio.NewReader(r)}
}

// Next reads a single event from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more events)
//   - *DecodeError with Kind=DecodeErrorRead: the reader failed mid-stream
//   - *DecodeError with Kind=DecodeErrorTooLarge: record exceeds MaxLineSize
//
// A line that is not valid JSON is NOT an error: Next returns a synthetic
// error event carrying MalformedLineMessage and the stream continues.
func (d *LineDecoder) Next() (*types.StreamEvent, error) {
	for {
		line, err := d.readLine()
		if err != nil {
			if len(bytes.TrimSpace(line)) == 0 {
				if err == io.EOF {
					return nil, io.EOF
				}
				return nil, err
			}
			// Trailing record without a newline: decode it, then report
			// the stream condition on the following call.
			if err == io.EOF {
				return decodeLine(line), nil
			}
			return nil, err
		}

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return decodeLine(line), nil
	}
}

// readLine accumulates one record, tolerating lines longer than the
// bufio buffer.
func (d *LineDecoder) readLine() ([]byte, error) {
	var record []byte
	for {
		chunk, err := d.reader.ReadSlice('\n')
		record = append(record, chunk...)
		if len(record) > MaxLineSize {
			return nil, &DecodeError{
				Kind: DecodeErrorTooLarge,
				Msg:  fmt.Sprintf("stream record exceeds maximum %d bytes", MaxLineSize),
			}
		}
		switch {
		case err == nil:
			return record, nil
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF:
			return record, io.EOF
		default:
			return record, &DecodeError{
				Kind: DecodeErrorRead,
				Msg:  "failed to read stream record",
				Err:  err,
			}
		}
	}
}

// decodeLine parses one record, degrading bad JSON to a synthetic
// error event.
func decodeLine(line []byte) *types.StreamEvent {
	var ev types.StreamEvent
	if err := json.Unmarshal(bytes.TrimSpace(line), &ev); err != nil {
		return syntheticError(MalformedLineMessage)
	}
	return &ev
}

// syntheticError builds a locally-originated error event.
func syntheticError(msg string) *types.StreamEvent {
	data, _ := json.Marshal(map[string]string{"message": msg})
	return &types.StreamEvent{Kind: types.EventError, Data: data}
}
