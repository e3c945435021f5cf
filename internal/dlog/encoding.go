package dlog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rawblock/sentinel/pkg/models"
)

// This file implements a compact, explicit-field binary encoding for
// the two record types retained in the delta/touch logs. No
// codegen-free binary serialization library exists anywhere in the
// example pack (see DESIGN.md), so encoding is hand-rolled length-
// prefixed binary with explicit field tags: every field is written
// behind a 1-byte tag. Fields carry no length of their own, so the
// decoders reject a tag they do not recognize with an error rather
// than skipping it.

const (
	tagSignature = 1
	tagSlot      = 2
	tagBlockTime = 3
	tagFeePayer  = 4
	tagPrograms  = 5
	tagTokenDelta = 6
	tagSolDelta   = 7
	tagMints      = 8
	tagFee        = 9
	tagAccounts   = 10
	tagEnd        = 0
)

func writeString(buf *bytes.Buffer, tag byte, s string) {
	buf.WriteByte(tag)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func writeUint64(buf *bytes.Buffer, tag byte, v uint64) {
	buf.WriteByte(tag)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, tag byte, v int64) {
	writeUint64(buf, tag, uint64(v))
}

func writeStringSlice(buf *bytes.Buffer, tag byte, vals []string) {
	buf.WriteByte(tag)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(vals)))
	buf.Write(countBuf[:])
	for _, v := range vals {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.WriteString(v)
	}
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readStringSlice(r *bytes.Reader) ([]string, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(countBuf[:])
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// EncodeDeltaRecord serializes a TxDeltaRecord into the tagged binary
// format.
func EncodeDeltaRecord(rec models.TxDeltaRecord) []byte {
	var buf bytes.Buffer
	writeString(&buf, tagSignature, rec.Signature)
	writeUint64(&buf, tagSlot, rec.Slot)
	writeInt64(&buf, tagBlockTime, rec.BlockTime)
	writeString(&buf, tagFeePayer, rec.FeePayer)
	writeStringSlice(&buf, tagPrograms, rec.ProgramsInvoked)

	buf.WriteByte(tagTokenDelta)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(rec.TokenDeltas)))
	buf.Write(countBuf[:])
	for _, td := range rec.TokenDeltas {
		writeStringInline(&buf, td.Owner)
		writeStringInline(&buf, td.Mint)
		var db [8]byte
		binary.BigEndian.PutUint64(db[:], uint64(td.Delta))
		buf.Write(db[:])
	}

	buf.WriteByte(tagSolDelta)
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(rec.SolDeltas)))
	buf.Write(countBuf[:])
	for _, sd := range rec.SolDeltas {
		writeStringInline(&buf, sd.Owner)
		var db [8]byte
		binary.BigEndian.PutUint64(db[:], uint64(sd.Delta))
		buf.Write(db[:])
	}

	writeStringSlice(&buf, tagMints, rec.MintsTouched)
	writeInt64(&buf, tagFee, rec.TxFee)
	writeInt64(&buf, tagAccounts, int64(rec.AccountsCreated))
	buf.WriteByte(tagEnd)

	return buf.Bytes()
}

func writeStringInline(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readStringInline(r *bytes.Reader) (string, error) {
	return readString(r)
}

// DecodeDeltaRecord parses the tagged binary format back into a
// TxDeltaRecord. It tolerates a truncated tail by returning an error
// the caller is expected to treat as "stop reading this file", never
// panicking on malformed input.
func DecodeDeltaRecord(data []byte) (models.TxDeltaRecord, error) {
	r := bytes.NewReader(data)
	var rec models.TxDeltaRecord

	for {
		tagByte, err := r.ReadByte()
		if err != nil {
			return rec, fmt.Errorf("read tag: %w", err)
		}
		if tagByte == tagEnd {
			break
		}
		switch tagByte {
		case tagSignature:
			rec.Signature, err = readString(r)
		case tagSlot:
			var v uint64
			v, err = readUint64(r)
			rec.Slot = v
		case tagBlockTime:
			var v uint64
			v, err = readUint64(r)
			rec.BlockTime = int64(v)
		case tagFeePayer:
			rec.FeePayer, err = readString(r)
		case tagPrograms:
			rec.ProgramsInvoked, err = readStringSlice(r)
		case tagTokenDelta:
			var countBuf [4]byte
			if _, err = io.ReadFull(r, countBuf[:]); err != nil {
				break
			}
			n := binary.BigEndian.Uint32(countBuf[:])
			rec.TokenDeltas = make([]models.TokenDelta, 0, n)
			for i := uint32(0); i < n && err == nil; i++ {
				var owner, mint string
				owner, err = readStringInline(r)
				if err != nil {
					break
				}
				mint, err = readStringInline(r)
				if err != nil {
					break
				}
				var v uint64
				v, err = readUint64(r)
				if err != nil {
					break
				}
				rec.TokenDeltas = append(rec.TokenDeltas, models.TokenDelta{Owner: owner, Mint: mint, Delta: int64(v)})
			}
		case tagSolDelta:
			var countBuf [4]byte
			if _, err = io.ReadFull(r, countBuf[:]); err != nil {
				break
			}
			n := binary.BigEndian.Uint32(countBuf[:])
			rec.SolDeltas = make([]models.SolDelta, 0, n)
			for i := uint32(0); i < n && err == nil; i++ {
				var owner string
				owner, err = readStringInline(r)
				if err != nil {
					break
				}
				var v uint64
				v, err = readUint64(r)
				if err != nil {
					break
				}
				rec.SolDeltas = append(rec.SolDeltas, models.SolDelta{Owner: owner, Delta: int64(v)})
			}
		case tagMints:
			rec.MintsTouched, err = readStringSlice(r)
		case tagFee:
			var v uint64
			v, err = readUint64(r)
			rec.TxFee = int64(v)
		case tagAccounts:
			var v uint64
			v, err = readUint64(r)
			rec.AccountsCreated = int(v)
		default:
			return rec, fmt.Errorf("unknown tag %d", tagByte)
		}
		if err != nil {
			return rec, fmt.Errorf("decode field (tag %d): %w", tagByte, err)
		}
	}

	return rec, nil
}

// EncodeTouchEvent serializes a MintTouchedEvent.
func EncodeTouchEvent(ev models.MintTouchedEvent) []byte {
	var buf bytes.Buffer
	writeString(&buf, tagSignature, ev.Signature)
	writeUint64(&buf, tagSlot, ev.Slot)
	writeInt64(&buf, tagBlockTime, ev.BlockTime)
	writeString(&buf, tagFeePayer, ev.FeePayer)
	writeStringSlice(&buf, tagMints, ev.MintsTouched)
	writeStringSlice(&buf, tagPrograms, ev.ProgramsInvoked)
	buf.WriteByte(tagEnd)
	return buf.Bytes()
}

// DecodeTouchEvent parses a MintTouchedEvent.
func DecodeTouchEvent(data []byte) (models.MintTouchedEvent, error) {
	r := bytes.NewReader(data)
	var ev models.MintTouchedEvent
	for {
		tagByte, err := r.ReadByte()
		if err != nil {
			return ev, fmt.Errorf("read tag: %w", err)
		}
		if tagByte == tagEnd {
			break
		}
		switch tagByte {
		case tagSignature:
			ev.Signature, err = readString(r)
		case tagSlot:
			var v uint64
			v, err = readUint64(r)
			ev.Slot = v
		case tagBlockTime:
			var v uint64
			v, err = readUint64(r)
			ev.BlockTime = int64(v)
		case tagFeePayer:
			ev.FeePayer, err = readString(r)
		case tagMints:
			ev.MintsTouched, err = readStringSlice(r)
		case tagPrograms:
			ev.ProgramsInvoked, err = readStringSlice(r)
		default:
			return ev, fmt.Errorf("unknown tag %d", tagByte)
		}
		if err != nil {
			return ev, fmt.Errorf("decode field (tag %d): %w", tagByte, err)
		}
	}
	return ev, nil
}
