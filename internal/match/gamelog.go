package match

import (
	"bytes"
	"encoding/json"
)

// LogEntry is one keyed value of the per-move log.
type LogEntry struct {
	Key   string
	Value any
}

// GameLog is an insertion-ordered JSON object.
type GameLog []LogEntry

func (l GameLog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value stored under key.
func (l GameLog) Get(key string) (any, bool) {
	for _, e := range l {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}
