package entry

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

type RecordType uint8

const (
	// RecordCommand is an engine command intent, journaled before the
	// command executes.
	RecordCommand RecordType = iota + 1
)

// Record is one journaled intent. Data is the service layer's encoded
// command; the WAL does not interpret it.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

// Wire field numbers. The body is a plain protowire message so external
// tooling can decode segments without this package.
const (
	fieldType = 1
	fieldSeq  = 2
	fieldTime = 3
	fieldData = 4
)

func (r *Record) marshal() []byte {
	b := make([]byte, 0, 24+len(r.Data))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Type))
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Seq)
	b = protowire.AppendTag(b, fieldTime, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Time))
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Data)
	return b
}

func unmarshal(body []byte) (*Record, error) {
	r := &Record{}
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		body = body[n:]

		switch {
		case typ == protowire.VarintType && num == fieldType:
			v, m := protowire.ConsumeVarint(body)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			r.Type = RecordType(v)
			body = body[m:]
		case typ == protowire.VarintType && num == fieldSeq:
			v, m := protowire.ConsumeVarint(body)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			r.Seq = v
			body = body[m:]
		case typ == protowire.VarintType && num == fieldTime:
			v, m := protowire.ConsumeVarint(body)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			r.Time = int64(v)
			body = body[m:]
		case typ == protowire.BytesType && num == fieldData:
			v, m := protowire.ConsumeBytes(body)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			r.Data = append([]byte(nil), v...)
			body = body[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, body)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			body = body[m:]
		}
	}
	if r.Type == 0 {
		return nil, fmt.Errorf("wal record without a type")
	}
	return r, nil
}
