// Package mailtext turns a raw RFC 5322 message into the plain-text body the
// extractor scans.
package mailtext

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jhillyerd/enmime"
)

// ErrEmptyMessage is wrapped by DecodeError when there is nothing to decode.
var ErrEmptyMessage = errors.New("message is empty")

// DecodeError reports that raw bytes could not be turned into text.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("mailtext: decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder is the contract the pipeline depends on.
type Decoder interface {
	Decode(raw []byte) (string, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(raw []byte) (string, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(raw []byte) (string, error) {
	return f(raw)
}

// Default is the enmime-backed decoder.
var Default Decoder = DecoderFunc(Decode)

// Decode returns the best-effort plain-text part of raw. HTML-only messages
// yield an empty string: HTML bodies are not converted. A message without a
// header block is treated as a bare body.
func Decode(raw []byte) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", &DecodeError{Err: ErrEmptyMessage}
	}

	if !hasHeaderBlock(raw) {
		return bareBody(raw)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", &DecodeError{Err: err}
	}

	if env.Text == "" || (env.HTML != "" && !hasPlainPart(env)) {
		return "", nil
	}
	return normalizeNewlines(env.Text), nil
}

func bareBody(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", &DecodeError{Err: errors.New("body is not valid UTF-8")}
	}
	return normalizeNewlines(string(raw)), nil
}

// hasHeaderBlock reports whether raw starts with a header field line. A
// leading blank line means the header block is empty.
func hasHeaderBlock(raw []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)
	if !sc.Scan() {
		return false
	}
	line := sc.Text()
	if strings.TrimSpace(line) == "" {
		return false
	}
	name, _, ok := strings.Cut(line, ":")
	if !ok || name == "" {
		return false
	}
	return !strings.ContainsAny(name, " \t")
}

func hasPlainPart(env *enmime.Envelope) bool {
	if env.Root == nil {
		return false
	}
	part := env.Root.BreadthMatchFirst(func(p *enmime.Part) bool {
		return p.ContentType == "text/plain" && p.Disposition != "attachment"
	})
	return part != nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
