// Package proxy implements the acceptor (C7), protocol detector and
// handlers (C8), and forwarder (C9) that make up the sidecar's data
// plane.
package proxy

import (
	"bufio"
	"bytes"
	"strings"
	"time"

	"golang.org/x/net/http2/hpack"

	"github.com/pqsecure/mesh/internal/core/domain"
)

const (
	// peekDetectBytes is the maximum the detector peeks to decide which
	// handler applies, per spec.md §4.8.
	peekDetectBytes = 24
	// httpLineProbeBytes bounds how far the HTTP handler looks for the
	// request line's terminating CRLF without consuming the stream.
	httpLineProbeBytes = 4096

	http2Preface     = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"
	http2FrameHeader = 9
	http2HeadersType = 0x1
	hpackTableSize   = 4096
	// maxGRPCFrameScanBytes bounds how far ExtractMethod scans past the
	// preface looking for a HEADERS frame; a real client's SETTINGS frame
	// precedes it by a few dozen bytes, so this is generous headroom
	// without peeking an unbounded amount off a hostile or malformed peer.
	maxGRPCFrameScanBytes = 16 * 1024

	unknownMethod = "unknown"
)

// ProtocolHandler recognizes one application protocol from a short peek
// and, once selected by the detector, extracts the policy-key method
// token from the buffered stream.
type ProtocolHandler interface {
	Protocol() domain.Protocol
	CanHandle(peek []byte) bool
	ExtractMethod(br *bufio.Reader) string
}

// Detector tries handlers in a fixed configured order and picks the
// first whose CanHandle returns true, per spec.md §4.8.
type Detector struct {
	handlers []ProtocolHandler
}

// NewDetector returns a Detector with the default gRPC, HTTP, TCP
// handler chain, matching spec.md §4.8's fixed precedence: gRPC and
// HTTP are tried before the TCP catch-all.
func NewDetector() *Detector {
	return &Detector{handlers: []ProtocolHandler{grpcHandler{}, httpHandler{}, tcpHandler{}}}
}

// Detect peeks at most peekDetectBytes from br within peekTimeout and
// returns the protocol and extracted method of the first matching
// handler. A peek that yields zero bytes before the deadline falls
// through to TCP, per spec.md §8.
func (d *Detector) Detect(br *bufio.Reader, setReadDeadline func(time.Time) error, peekTimeout time.Duration) (domain.Protocol, string) {
	_ = setReadDeadline(time.Now().Add(peekTimeout))
	defer setReadDeadline(time.Time{})

	peek, _ := br.Peek(peekDetectBytes)
	for _, h := range d.handlers {
		if h.CanHandle(peek) {
			return h.Protocol(), h.ExtractMethod(br)
		}
	}
	return domain.ProtocolTCP, "connect"
}

// grpcHandler recognizes the HTTP/2 connection preface or, for a short
// peek, a byte pattern consistent with a leading SETTINGS frame.
type grpcHandler struct{}

func (grpcHandler) Protocol() domain.Protocol { return domain.ProtocolGRPC }

func (grpcHandler) CanHandle(peek []byte) bool {
	if len(peek) == len(http2Preface) {
		return string(peek) == http2Preface
	}
	// Fewer bytes than a full preface: fall back to the SETTINGS-frame
	// heuristic from spec.md §4.8 (fifth byte, offset 4, == 0x04).
	return len(peek) > 4 && peek[4] == 0x04
}

// tcpHandler is the catch-all: it always applies and reports the literal
// method token "connect".
type tcpHandler struct{}

func (tcpHandler) Protocol() domain.Protocol        { return domain.ProtocolTCP }
func (tcpHandler) CanHandle([]byte) bool            { return true }
func (tcpHandler) ExtractMethod(*bufio.Reader) string { return "connect" }

// httpHandler recognizes a request line beginning with one of the HTTP
// methods spec.md §4.8 enumerates, by its first three bytes.
type httpHandler struct{}

func (httpHandler) Protocol() domain.Protocol { return domain.ProtocolHTTP }

var httpMethodPrefixes = map[string]bool{
	"GET": true, "POS": true, "PUT": true, "HEA": true,
	"DEL": true, "OPT": true, "PAT": true,
}

func (httpHandler) CanHandle(peek []byte) bool {
	if len(peek) < 3 {
		return false
	}
	return httpMethodPrefixes[strings.ToUpper(string(peek[:3]))]
}

func (httpHandler) ExtractMethod(br *bufio.Reader) string {
	peek, _ := br.Peek(httpLineProbeBytes)
	idx := bytes.Index(peek, []byte("\r\n"))
	if idx < 0 {
		return unknownMethod
	}
	parts := strings.SplitN(string(peek[:idx]), " ", 3)
	if len(parts) < 2 {
		return unknownMethod
	}
	return parts[0] + " " + parts[1]
}

// ExtractMethod scans forward from the preface over any leading
// non-HEADERS frames (a real client always sends SETTINGS first, often
// followed by WINDOW_UPDATE) until it finds the HEADERS frame carrying
// the request's ":path" pseudo-header, or gives up past
// maxGRPCFrameScanBytes.
func (grpcHandler) ExtractMethod(br *bufio.Reader) string {
	offset := len(http2Preface)
	for {
		header, err := br.Peek(offset + http2FrameHeader)
		if err != nil {
			return unknownMethod
		}
		frameStart := header[offset:]
		frameLen := int(frameStart[0])<<16 | int(frameStart[1])<<8 | int(frameStart[2])
		frameType := frameStart[3]
		frameEnd := offset + http2FrameHeader + frameLen
		if frameEnd > maxGRPCFrameScanBytes {
			return unknownMethod
		}

		if frameType != http2HeadersType {
			offset = frameEnd
			continue
		}

		payload, err := br.Peek(frameEnd)
		if err != nil {
			return unknownMethod
		}
		block := payload[offset+http2FrameHeader : frameEnd]

		var path string
		dec := hpack.NewDecoder(hpackTableSize, func(f hpack.HeaderField) {
			if f.Name == ":path" {
				path = f.Value
			}
		})
		if _, err := dec.Write(block); err != nil {
			return unknownMethod
		}
		return grpcPathToMethod(path)
	}
}

// grpcPathToMethod converts a gRPC ":path" pseudo-header of the form
// "/<service>/<Method>" into the policy-key token "<service>.<Method>".
func grpcPathToMethod(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return unknownMethod
	}
	return strings.Replace(trimmed, "/", ".", 1)
}
