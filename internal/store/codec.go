package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

// The on-disk value format is a fixed, documented length-prefixed binary
// encoding (big-endian), so independent implementations sharing a store
// directory agree byte-for-byte. Strings are uint32-length-prefixed UTF-8;
// slices are uint32-length-prefixed element sequences.

type encoder struct{ buf bytes.Buffer }

func (e *encoder) u8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) u32(v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) i64(v int64)  { var b [8]byte; binary.BigEndian.PutUint64(b[:], uint64(v)); e.buf.Write(b[:]) }
func (e *encoder) u64(v uint64) { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) f64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	e.buf.Write(b[:])
}
func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}
func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf.WriteString(s)
}
func (e *encoder) bytes() []byte { return e.buf.Bytes() }

type decoder struct {
	data []byte
	pos  int
}

func newDecoder(data []byte) *decoder { return &decoder{data: data} }

func (d *decoder) u8() (uint8, error) {
	if d.pos+1 > len(d.data) {
		return 0, errShortRead
	}
	v := d.data[d.pos]
	d.pos++
	return v, nil
}
func (d *decoder) u32() (uint32, error) {
	if d.pos+4 > len(d.data) {
		return 0, errShortRead
	}
	v := binary.BigEndian.Uint32(d.data[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}
func (d *decoder) i64() (int64, error) {
	if d.pos+8 > len(d.data) {
		return 0, errShortRead
	}
	v := int64(binary.BigEndian.Uint64(d.data[d.pos : d.pos+8]))
	d.pos += 8
	return v, nil
}
func (d *decoder) u64() (uint64, error) {
	if d.pos+8 > len(d.data) {
		return 0, errShortRead
	}
	v := binary.BigEndian.Uint64(d.data[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}
func (d *decoder) f64() (float64, error) {
	v, err := d.u64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}
func (d *decoder) bool() (bool, error) {
	v, err := d.u8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
func (d *decoder) str() (string, error) {
	n, err := d.u32()
	if err != nil {
		return "", err
	}
	if d.pos+int(n) > len(d.data) {
		return "", errShortRead
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

var errShortRead = fmt.Errorf("store: truncated value")

func encodeSpan(e *encoder, s domain.Span) {
	e.i64(int64(s.Start))
	e.i64(int64(s.End))
}
func decodeSpan(d *decoder) (domain.Span, error) {
	start, err := d.i64()
	if err != nil {
		return domain.Span{}, err
	}
	end, err := d.i64()
	if err != nil {
		return domain.Span{}, err
	}
	return domain.Span{Start: int(start), End: int(end)}, nil
}

// --- FingerprintSet ---

func encodeFingerprintSet(fs domain.FingerprintSet) []byte {
	e := &encoder{}
	e.str(fs.SubmissionID)
	e.str(fs.StepID)
	e.i64(int64(fs.UniqueCount))
	e.u32(uint32(len(fs.Files)))
	for _, ff := range fs.Files {
		e.str(ff.FilePath)
		e.str(ff.Language)
		e.u32(uint32(len(ff.Fingerprints)))
		for _, fp := range ff.Fingerprints {
			e.u64(fp.Hash)
			e.i64(int64(fp.Position))
			encodeSpan(e, fp.Span)
		}
	}
	return e.bytes()
}

func decodeFingerprintSet(data []byte) (domain.FingerprintSet, error) {
	d := newDecoder(data)
	var fs domain.FingerprintSet
	var err error
	if fs.SubmissionID, err = d.str(); err != nil {
		return fs, err
	}
	if fs.StepID, err = d.str(); err != nil {
		return fs, err
	}
	unique, err := d.i64()
	if err != nil {
		return fs, err
	}
	fs.UniqueCount = int(unique)
	fileCount, err := d.u32()
	if err != nil {
		return fs, err
	}
	fs.Files = make([]domain.FileFingerprints, 0, fileCount)
	for i := uint32(0); i < fileCount; i++ {
		var ff domain.FileFingerprints
		if ff.FilePath, err = d.str(); err != nil {
			return fs, err
		}
		if ff.Language, err = d.str(); err != nil {
			return fs, err
		}
		fpCount, err := d.u32()
		if err != nil {
			return fs, err
		}
		ff.Fingerprints = make([]domain.Fingerprint, 0, fpCount)
		for j := uint32(0); j < fpCount; j++ {
			var fp domain.Fingerprint
			if fp.Hash, err = d.u64(); err != nil {
				return fs, err
			}
			pos, err := d.i64()
			if err != nil {
				return fs, err
			}
			fp.Position = int(pos)
			if fp.Span, err = decodeSpan(d); err != nil {
				return fs, err
			}
			ff.Fingerprints = append(ff.Fingerprints, fp)
		}
		fs.Files = append(fs.Files, ff)
	}
	return fs, nil
}

// --- TokenStream ---

func encodeTokenStream(ts domain.TokenStream) []byte {
	e := &encoder{}
	e.str(ts.FilePath)
	e.str(ts.Language)
	e.str(ts.Warning)
	e.u32(uint32(len(ts.Tokens)))
	for _, tok := range ts.Tokens {
		e.u8(uint8(tok.Kind))
		e.str(tok.Lexeme)
		e.str(tok.Literal)
		encodeSpan(e, tok.Span)
	}
	return e.bytes()
}

func decodeTokenStream(data []byte) (domain.TokenStream, error) {
	d := newDecoder(data)
	var ts domain.TokenStream
	var err error
	if ts.FilePath, err = d.str(); err != nil {
		return ts, err
	}
	if ts.Language, err = d.str(); err != nil {
		return ts, err
	}
	if ts.Warning, err = d.str(); err != nil {
		return ts, err
	}
	count, err := d.u32()
	if err != nil {
		return ts, err
	}
	ts.Tokens = make([]domain.Token, 0, count)
	for i := uint32(0); i < count; i++ {
		var tok domain.Token
		kind, err := d.u8()
		if err != nil {
			return ts, err
		}
		tok.Kind = domain.TokenKind(kind)
		if tok.Lexeme, err = d.str(); err != nil {
			return ts, err
		}
		if tok.Literal, err = d.str(); err != nil {
			return ts, err
		}
		if tok.Span, err = decodeSpan(d); err != nil {
			return ts, err
		}
		ts.Tokens = append(ts.Tokens, tok)
	}
	return ts, nil
}

// --- SimilarityResult ---

func encodeSimilarityResult(r domain.SimilarityResult) []byte {
	e := &encoder{}
	e.str(r.ID)
	e.str(r.StepID)
	e.str(r.SubmissionA)
	e.str(r.SubmissionB)
	e.f64(r.Score)
	e.bool(r.LowConfidence)
	e.bool(r.Truncated)
	e.i64(r.Timestamp.UnixNano())
	e.u32(uint32(len(r.Regions)))
	for _, reg := range r.Regions {
		e.u64(reg.Hash)
		e.str(reg.A.SubmissionID)
		e.str(reg.A.FilePath)
		encodeSpan(e, reg.A.Span)
		e.str(reg.B.SubmissionID)
		e.str(reg.B.FilePath)
		encodeSpan(e, reg.B.Span)
		e.i64(int64(reg.TokenCount))
	}
	return e.bytes()
}

func decodeSimilarityResult(data []byte) (domain.SimilarityResult, error) {
	d := newDecoder(data)
	var r domain.SimilarityResult
	var err error
	if r.ID, err = d.str(); err != nil {
		return r, err
	}
	if r.StepID, err = d.str(); err != nil {
		return r, err
	}
	if r.SubmissionA, err = d.str(); err != nil {
		return r, err
	}
	if r.SubmissionB, err = d.str(); err != nil {
		return r, err
	}
	if r.Score, err = d.f64(); err != nil {
		return r, err
	}
	if r.LowConfidence, err = d.bool(); err != nil {
		return r, err
	}
	if r.Truncated, err = d.bool(); err != nil {
		return r, err
	}
	nanos, err := d.i64()
	if err != nil {
		return r, err
	}
	r.Timestamp = time.Unix(0, nanos).UTC()
	count, err := d.u32()
	if err != nil {
		return r, err
	}
	if count > 0 {
		r.Regions = make([]domain.MatchRegion, 0, count)
	}
	for i := uint32(0); i < count; i++ {
		var reg domain.MatchRegion
		if reg.Hash, err = d.u64(); err != nil {
			return r, err
		}
		if reg.A.SubmissionID, err = d.str(); err != nil {
			return r, err
		}
		if reg.A.FilePath, err = d.str(); err != nil {
			return r, err
		}
		if reg.A.Span, err = decodeSpan(d); err != nil {
			return r, err
		}
		if reg.B.SubmissionID, err = d.str(); err != nil {
			return r, err
		}
		if reg.B.FilePath, err = d.str(); err != nil {
			return r, err
		}
		if reg.B.Span, err = decodeSpan(d); err != nil {
			return r, err
		}
		tc, err := d.i64()
		if err != nil {
			return r, err
		}
		reg.TokenCount = int(tc)
		r.Regions = append(r.Regions, reg)
	}
	return r, nil
}
