// Package store implements the two persistence primitives the core is
// built on: a locked append-only JSONL log and an atomic whole-file
// replace. Cross-process coordination happens only through these.
package store

import (
	"encoding/json"
	"errors"
	"hash/crc32"

	"github.com/bytedance/sonic"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

var (
	ErrSchemaMismatch  = errors.New("store: record schema mismatch")
	ErrChecksum        = errors.New("store: record checksum mismatch")
	ErrTruncatedRecord = errors.New("store: truncated record")
)

// envelope wraps every appended record with a schema tag and a content
// hash so truncation or tampering is detectable on read.
type envelope struct {
	Schema string          `json:"schema"`
	CRC    uint32          `json:"crc"`
	Data   json.RawMessage `json:"data"`
}

func seal(schema string, v any) ([]byte, error) {
	payload, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	env := envelope{
		Schema: schema,
		CRC:    crc32.Checksum(payload, crcTable),
		Data:   payload,
	}
	line, err := sonic.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

func open(schema string, line []byte) (json.RawMessage, error) {
	var env envelope
	if err := sonic.Unmarshal(line, &env); err != nil {
		return nil, ErrTruncatedRecord
	}
	if env.Schema != schema {
		return nil, ErrSchemaMismatch
	}
	if crc32.Checksum(env.Data, crcTable) != env.CRC {
		return nil, ErrChecksum
	}
	return env.Data, nil
}
