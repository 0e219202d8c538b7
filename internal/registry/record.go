package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ariadne/internal/store"
)

// ErrEncode is wrapped by errors for payloads that cannot be encoded as
// JSON (channels, functions, NaN, ...).
var ErrEncode = errors.New("payload is not JSON-serializable")

// Payload is a JSON object supplied by the caller: a run configuration or
// a metrics snapshot.
type Payload map[string]any

// Record is an experiment as returned by queries. The logs column is
// exposed as Metrics.
type Record struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Notes          string     `json:"notes"`
	RunConfig      Payload    `json:"run_config"`
	Folder         string     `json:"folder"`
	StartTimestamp time.Time  `json:"start_timestamp"`
	EndTimestamp   *time.Time `json:"end_timestamp"`
	Completed      bool       `json:"completed"`
	Metrics        Payload    `json:"metrics"`
	VCHash         *string    `json:"vc_hash"`
	VCMsg          *string    `json:"vc_msg"`
	SourceCode     *string    `json:"source_code"`
}

// encodePayload serializes p for storage. A nil payload encodes as {}.
func encodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return b, nil
}

// decodePayload parses stored JSON text. Numbers decode as float64.
func decodePayload(s string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return p, nil
}

func toRecord(exp store.Experiment) (Record, error) {
	rec := Record{
		ID:             exp.ID,
		Name:           exp.Name,
		Notes:          exp.Notes,
		Folder:         exp.Folder,
		StartTimestamp: exp.StartTimestamp,
		EndTimestamp:   exp.EndTimestamp,
		Completed:      exp.Completed,
		VCHash:         exp.VCHash,
		VCMsg:          exp.VCMsg,
		SourceCode:     exp.SourceCode,
	}

	var err error
	rec.RunConfig, err = decodePayload(exp.RunConfig)
	if err != nil {
		return Record{}, fmt.Errorf("experiment %d: decode run_config: %w", exp.ID, err)
	}
	if exp.Logs != nil {
		rec.Metrics, err = decodePayload(*exp.Logs)
		if err != nil {
			return Record{}, fmt.Errorf("experiment %d: decode logs: %w", exp.ID, err)
		}
	}
	return rec, nil
}
