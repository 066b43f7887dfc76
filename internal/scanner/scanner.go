// Package scanner locates serialized FileDescriptorProto records inside
// arbitrary byte buffers.
//
// The search is anchored on the ".proto" suffix every descriptor's name field
// carries: for each occurrence the scanner backtracks to a plausible
// (0x0A, length) header, validates the filename bytes, then walks forward
// through the wire format to find the record boundary. Candidates that do not
// survive the walk are rejected without aborting the pass.
package scanner

import (
	"bytes"
	"strings"

	"fortio.org/safecast"

	"protosift/internal/wire"
)

// protoSuffix anchors the search; every descriptor names a *.proto file.
var protoSuffix = []byte(".proto")

// headerTag is field 1 (name) with wire type LEN: (1 << 3) | 2.
const headerTag = 0x0A

// maxTopLevelField bounds the field numbers tolerated while walking a
// descriptor. FileDescriptorProto tops out at 14 today; 32 leaves headroom
// for future descriptor.proto revisions without admitting line noise.
const maxTopLevelField = 32

// maxLenVarint caps the filename length prefix at two varint bytes
// (filenames up to 16383 bytes, far beyond any real path).
const maxLenVarint = 2

// Config controls a scan pass.
type Config struct {
	// MaxDescriptors bounds the number of emitted hits (0 = unlimited).
	MaxDescriptors int
	// MinFilenameLen rejects implausibly short descriptor names.
	MinFilenameLen int
	// MaxFilenameLen rejects implausibly long descriptor names.
	MaxFilenameLen int
}

// DefaultConfig returns the standard scan configuration: unlimited hits,
// filenames between len("a.proto") and 512 bytes.
func DefaultConfig() Config {
	return Config{
		MaxDescriptors: 0,
		MinFilenameLen: len("a.proto"),
		MaxFilenameLen: 512,
	}
}

// Hit is one located descriptor record.
type Hit struct {
	// Start is the offset of the record's first byte (the 0x0A name tag).
	Start int
	// End is the exclusive offset one past the record's last byte.
	End int
	// Filename is the descriptor's name field, extracted during validation.
	Filename string
}

// Bytes returns the record's slice of buf. The slice aliases buf.
func (h Hit) Bytes(buf []byte) []byte {
	return buf[h.Start:h.End]
}

// Scanner is a lazy producer of hits over a single buffer. It is single-pass:
// rescanning requires a new Scanner. It never copies the buffer.
type Scanner struct {
	cfg Config
	buf []byte

	pos      int // next search anchor
	minStart int // candidates must not reach before this (end of last hit)
	emitted  int
}

// New returns a Scanner over buf. Zero-valued config fields fall back to
// DefaultConfig.
func New(buf []byte, cfg Config) *Scanner {
	def := DefaultConfig()
	if cfg.MinFilenameLen <= 0 {
		cfg.MinFilenameLen = def.MinFilenameLen
	}
	if cfg.MaxFilenameLen <= 0 {
		cfg.MaxFilenameLen = def.MaxFilenameLen
	}
	return &Scanner{cfg: cfg, buf: buf}
}

// Scan collects every hit in buf in one call.
func Scan(buf []byte, cfg Config) []Hit {
	s := New(buf, cfg)
	var hits []Hit
	for {
		h, ok := s.Next()
		if !ok {
			return hits
		}
		hits = append(hits, h)
	}
}

// Next yields the next hit, or ok=false at end of stream. Hits come back in
// ascending Start order with pairwise disjoint ranges.
func (s *Scanner) Next() (Hit, bool) {
	for s.pos < len(s.buf) {
		if s.cfg.MaxDescriptors > 0 && s.emitted >= s.cfg.MaxDescriptors {
			return Hit{}, false
		}
		idx := bytes.Index(s.buf[s.pos:], protoSuffix)
		if idx < 0 {
			return Hit{}, false
		}
		tail := s.pos + idx
		if hit, ok := s.candidateAt(tail); ok {
			s.pos = hit.End
			s.minStart = hit.End
			s.emitted++
			return hit, true
		}
		s.pos = tail + len(protoSuffix)
	}
	return Hit{}, false
}

// candidateAt tries to grow a ".proto" occurrence at tail into a full record.
// The backward header search visits earlier starts first, which also settles
// the 0x0A-length ambiguity (a 10-byte filename makes the header 0x0A 0x0A):
// every plausible interpretation is walked and the earliest one that
// validates wins.
func (s *Scanner) candidateAt(tail int) (Hit, bool) {
	filenameEnd := tail + len(protoSuffix)
	if filenameEnd > len(s.buf) {
		return Hit{}, false
	}
	lo := filenameEnd - s.cfg.MaxFilenameLen - 1 - maxLenVarint
	if lo < s.minStart {
		lo = s.minStart
	}
	for hdr := lo; hdr < tail; hdr++ {
		if s.buf[hdr] != headerTag {
			continue
		}
		length, n, err := wire.DecodeVarint(s.buf[hdr+1:])
		if err != nil || n > maxLenVarint {
			continue
		}
		nameLen, err := safecast.Conv[int](length)
		if err != nil {
			continue
		}
		nameStart := hdr + 1 + n
		if nameStart+nameLen != filenameEnd {
			continue
		}
		if nameLen < s.cfg.MinFilenameLen || nameLen > s.cfg.MaxFilenameLen {
			continue
		}
		if !validFilename(s.buf[nameStart:filenameEnd]) {
			continue
		}
		if end, ok := s.walk(hdr); ok {
			return Hit{
				Start:    hdr,
				End:      end,
				Filename: string(s.buf[nameStart:filenameEnd]),
			}, true
		}
	}
	return Hit{}, false
}

// walk parses top-level fields from hdr until a record boundary. It returns
// the exclusive end offset, or ok=false when the candidate must be discarded
// (a declared length overruns the buffer, or not even the name field parses).
func (s *Scanner) walk(hdr int) (end int, ok bool) {
	r := wire.NewReaderAt(s.buf, hdr)
	sawName := false
	for {
		if r.Remaining() == 0 {
			return r.Pos(), sawName
		}
		fieldPos := r.Pos()
		if sawName && s.looksLikeHeader(fieldPos) {
			// Start of an adjacent descriptor.
			return fieldPos, true
		}
		num, wt, err := r.ReadTag()
		if err != nil || num < 1 || num > maxTopLevelField || !wt.Valid() {
			// Clean end: first byte sequence that cannot be a
			// FileDescriptorProto top-level field.
			return fieldPos, sawName
		}
		if err := r.SkipField(wt); err != nil {
			// Payload overruns the buffer: truncated record, discard.
			return 0, false
		}
		if num == 1 {
			sawName = true
		}
	}
}

// looksLikeHeader reports whether pos starts a (0x0A, length, path bytes,
// ".proto") sequence, i.e. the name field of another descriptor.
func (s *Scanner) looksLikeHeader(pos int) bool {
	if s.buf[pos] != headerTag {
		return false
	}
	length, n, err := wire.DecodeVarint(s.buf[pos+1:])
	if err != nil || n > maxLenVarint {
		return false
	}
	nameLen, err := safecast.Conv[int](length)
	if err != nil {
		return false
	}
	if nameLen < s.cfg.MinFilenameLen || nameLen > s.cfg.MaxFilenameLen {
		return false
	}
	nameStart := pos + 1 + n
	if nameStart+nameLen > len(s.buf) {
		return false
	}
	return validFilename(s.buf[nameStart : nameStart+nameLen])
}

// validFilename accepts printable ASCII path characters ending in ".proto".
func validFilename(name []byte) bool {
	if !bytes.HasSuffix(name, protoSuffix) {
		return false
	}
	for _, b := range name {
		if !validPathByte(b) {
			return false
		}
	}
	return true
}

func validPathByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '_' || b == '.' || b == '/' || b == '-':
		return true
	}
	return false
}

// IsProtoPath reports whether name looks like a descriptor filename. Exposed
// for callers that post-filter decoded descriptors.
func IsProtoPath(name string) bool {
	return strings.HasSuffix(name, ".proto") && validFilename([]byte(name))
}
