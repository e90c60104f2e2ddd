package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"fathom/internal/protocol"
)

// MaxMessageSize is the maximum NDJSON message size (256 KiB)
const MaxMessageSize = 256 * 1024

// Encoder writes NDJSON messages to an output stream
type Encoder struct {
	writer *bufio.Writer
	logger *slog.Logger
}

// NewEncoder creates a new NDJSON encoder
func NewEncoder(w io.Writer, logger *slog.Logger) *Encoder {
	return &Encoder{
		writer: bufio.NewWriter(w),
		logger: logger,
	}
}

// Encode writes a message as a single JSON line and flushes it, so the
// peer sees the message immediately.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if len(data) > MaxMessageSize {
		e.logger.Error("message exceeds size limit",
			"size", len(data),
			"limit", MaxMessageSize)
		return fmt.Errorf("message size %d exceeds limit %d", len(data), MaxMessageSize)
	}

	if _, err := e.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := e.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return e.writer.Flush()
}

// EncodeEvent writes a worker event with its wire discriminator injected
// as the "type" field.
func (e *Encoder) EncodeEvent(ev protocol.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to build event envelope: %w", err)
	}
	envelope["type"] = ev.Tag()

	return e.Encode(envelope)
}

// LineError reports a single undecodable line. Decoding continues past it;
// the session treats these as protocol warnings, never as fatal errors.
type LineError struct {
	Line int
	Data string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Decoder reads NDJSON messages from an input stream
type Decoder struct {
	reader  *bufio.Reader
	logger  *slog.Logger
	lineNum int
}

// NewDecoder creates a new NDJSON decoder
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	return &Decoder{
		// One extra byte so a maximum-size message plus its newline fits.
		reader: bufio.NewReaderSize(r, MaxMessageSize+1),
		logger: logger,
	}
}

// Decode reads the next NDJSON message into v, skipping empty lines.
// Returns io.EOF when the stream ends.
func (d *Decoder) Decode(v any) error {
	data, err := d.nextLine()
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return &LineError{Line: d.lineNum, Data: string(data), Err: err}
	}
	return nil
}

func (d *Decoder) nextLine() ([]byte, error) {
	for {
		line, err := d.reader.ReadSlice('\n')

		if errors.Is(err, bufio.ErrBufferFull) {
			// Oversized line: swallow it through the next newline and report
			// a single droppable LineError so one bad line never ends the
			// stream.
			d.lineNum++
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = d.reader.ReadSlice('\n')
			}
			return nil, &LineError{
				Line: d.lineNum,
				Err:  fmt.Errorf("line exceeds size limit %d", MaxMessageSize),
			}
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read failed at line %d: %w", d.lineNum+1, err)
		}

		data := bytes.TrimRight(line, "\r\n")
		if len(data) == 0 {
			if err == io.EOF {
				return nil, io.EOF
			}
			d.lineNum++
			continue
		}

		d.lineNum++
		return data, nil
	}
}

// DecodeEvent reads and decodes one worker event, selecting the concrete
// type from the "type" discriminator. A malformed line or unknown tag is
// returned as a *LineError so the caller can warn and keep reading.
func (d *Decoder) DecodeEvent() (protocol.Event, error) {
	data, err := d.nextLine()
	if err != nil {
		return nil, err
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		d.logger.Warn("dropping unparseable line",
			"line", d.lineNum,
			"error", err)
		return nil, &LineError{Line: d.lineNum, Data: string(data), Err: err}
	}

	ev, err := unmarshalEvent(head.Type, data)
	if err != nil {
		d.logger.Warn("dropping undecodable event",
			"line", d.lineNum,
			"tag", head.Type,
			"error", err)
		return nil, &LineError{Line: d.lineNum, Data: string(data), Err: err}
	}
	return ev, nil
}

func unmarshalEvent(tag string, data []byte) (protocol.Event, error) {
	switch tag {
	case protocol.TagStatus:
		var ev protocol.Status
		return ev, json.Unmarshal(data, &ev)
	case protocol.TagTrace:
		var ev protocol.Trace
		return ev, json.Unmarshal(data, &ev)
	case protocol.TagClarifyingQuestions:
		var ev protocol.ClarifyingQuestions
		return ev, json.Unmarshal(data, &ev)
	case protocol.TagPrompt:
		var ev protocol.Prompt
		return ev, json.Unmarshal(data, &ev)
	case protocol.TagRawResponse:
		var ev protocol.RawResponse
		return ev, json.Unmarshal(data, &ev)
	case protocol.TagDecision:
		var ev protocol.Decision
		return ev, json.Unmarshal(data, &ev)
	case protocol.TagReport:
		var ev protocol.Report
		return ev, json.Unmarshal(data, &ev)
	case protocol.TagMetadata:
		var ev protocol.Metadata
		return ev, json.Unmarshal(data, &ev)
	case protocol.TagError:
		var ev protocol.WorkerError
		return ev, json.Unmarshal(data, &ev)
	case protocol.TagDone:
		var ev protocol.Done
		return ev, json.Unmarshal(data, &ev)
	default:
		return nil, fmt.Errorf("unknown event type: %q", tag)
	}
}
