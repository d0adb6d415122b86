package protocol

import (
	"strconv"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FieldFunc renders one output column of a Reading.
type FieldFunc func(Reading) string

// Schema returns the ordered output schema of a Reading: column name to
// renderer, in the fixed order rows are serialized in. Every sink (CSV,
// SQLite) iterates this map so column order is defined in exactly one
// place.
func Schema() *orderedmap.OrderedMap[string, FieldFunc] {
	m := orderedmap.New[string, FieldFunc]()
	m.Set("timestamp", func(r Reading) string {
		return strconv.FormatUint(uint64(r.SensorMillis), 10)
	})
	m.Set("timestamp_local", func(r Reading) string {
		return r.Received.Format(time.RFC3339Nano)
	})
	m.Set("ax", func(r Reading) string { return formatChannel(r.Ax) })
	m.Set("ay", func(r Reading) string { return formatChannel(r.Ay) })
	m.Set("az", func(r Reading) string { return formatChannel(r.Az) })
	return m
}

// ColumnNames returns the schema column names in serialization order.
func ColumnNames() []string {
	s := Schema()
	names := make([]string, 0, s.Len())
	for pair := s.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// formatChannel renders an acceleration channel with float32 precision,
// matching what was on the wire.
func formatChannel(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 32)
}
