// Package draftrpc is the connect wire contract for the draft services: plain
// Go messages, a JSON codec, procedure names, handler constructors and
// clients.
package draftrpc

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// CodecName matches the application/json content type so curl and browser
// clients can call the services directly.
const CodecName = "json"

// Codec marshals plain structs with encoding/json.
type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// IdempotencyKeyHeader carries the pick submission token.
const IdempotencyKeyHeader = "Idempotency-Key"

// ErrorKindHeader carries the drafterr kind on failed calls.
const ErrorKindHeader = "Draft-Error-Kind"
