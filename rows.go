package pgmcp

import (
	"encoding/base64"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// collectRows reads every row into JSON-friendly maps. For writes the rows
// are the RETURNING rows, which may be empty.
func collectRows(rows pgx.Rows) (*RecordsOutput, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &RecordsOutput{
		Columns:      columns,
		Rows:         out,
		RowCount:     len(out),
		RowsAffected: rows.CommandTag().RowsAffected(),
	}, nil
}

// convertValue converts a value decoded by pgx into something encoding/json
// renders faithfully. Special floats become strings, geometric and range
// types use their Postgres text form, binary data is base64.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case string, bool, int16, int32, int64:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val), val)
	case float64:
		return convertFloat(val, val)
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case netip.Prefix:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case pgtype.Numeric:
		return convertNumeric(val)
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		return formatClock(val.Microseconds)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return formatInterval(val)
	case pgtype.Range[interface{}]:
		if !val.Valid {
			return nil
		}
		return formatRange(val)
	case pgtype.Bits:
		if !val.Valid {
			return nil
		}
		bits := make([]byte, val.Len)
		for i := int32(0); i < val.Len; i++ {
			bits[i] = '0'
			if val.Bytes[i/8]&(1<<uint(7-i%8)) != 0 {
				bits[i] = '1'
			}
		}
		return string(bits)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = convertValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	}
	if s, ok := convertGeometric(v); ok {
		return s
	}
	return v
}

func convertFloat(f float64, original interface{}) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return original
}

// convertNumeric keeps full precision by rendering the decimal as a string.
func convertNumeric(n pgtype.Numeric) interface{} {
	switch {
	case !n.Valid:
		return nil
	case n.NaN:
		return "NaN"
	case n.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	}
	b, err := n.MarshalJSON()
	if err != nil {
		return nil
	}
	return string(b)
}

func formatClock(us int64) string {
	h := us / 3_600_000_000
	us %= 3_600_000_000
	m := us / 60_000_000
	us %= 60_000_000
	s := us / 1_000_000
	us %= 1_000_000
	if us > 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%06d", h, m, s, us)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatInterval(iv pgtype.Interval) string {
	var parts []string
	if years := iv.Months / 12; years != 0 {
		parts = append(parts, fmt.Sprintf("%d year(s)", years))
	}
	if months := iv.Months % 12; months != 0 {
		parts = append(parts, fmt.Sprintf("%d mon(s)", months))
	}
	if iv.Days != 0 {
		parts = append(parts, fmt.Sprintf("%d day(s)", iv.Days))
	}
	if iv.Microseconds != 0 {
		parts = append(parts, (time.Duration(iv.Microseconds) * time.Microsecond).String())
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, " ")
}

func formatRange(r pgtype.Range[interface{}]) string {
	if r.LowerType == pgtype.Empty {
		return "empty"
	}
	var sb strings.Builder
	if r.LowerType == pgtype.Inclusive {
		sb.WriteByte('[')
	} else {
		sb.WriteByte('(')
	}
	if r.LowerType != pgtype.Unbounded {
		fmt.Fprintf(&sb, "%v", convertValue(r.Lower))
	}
	sb.WriteByte(',')
	if r.UpperType != pgtype.Unbounded {
		fmt.Fprintf(&sb, "%v", convertValue(r.Upper))
	}
	if r.UpperType == pgtype.Inclusive {
		sb.WriteByte(']')
	} else {
		sb.WriteByte(')')
	}
	return sb.String()
}

// convertGeometric renders geometric types in Postgres text form so that a
// value read back can be used as a near/within literal.
func convertGeometric(v interface{}) (interface{}, bool) {
	pt := func(p pgtype.Vec2) string { return fmt.Sprintf("(%g,%g)", p.X, p.Y) }
	pts := func(ps []pgtype.Vec2) string {
		s := make([]string, len(ps))
		for i, p := range ps {
			s[i] = pt(p)
		}
		return strings.Join(s, ",")
	}

	switch val := v.(type) {
	case pgtype.Point:
		if !val.Valid {
			return nil, true
		}
		return pt(val.P), true
	case pgtype.Line:
		if !val.Valid {
			return nil, true
		}
		return fmt.Sprintf("{%g,%g,%g}", val.A, val.B, val.C), true
	case pgtype.Lseg:
		if !val.Valid {
			return nil, true
		}
		return "[" + pts(val.P[:]) + "]", true
	case pgtype.Box:
		if !val.Valid {
			return nil, true
		}
		return pts(val.P[:]), true
	case pgtype.Path:
		if !val.Valid {
			return nil, true
		}
		if val.Closed {
			return "(" + pts(val.P) + ")", true
		}
		return "[" + pts(val.P) + "]", true
	case pgtype.Polygon:
		if !val.Valid {
			return nil, true
		}
		return "(" + pts(val.P) + ")", true
	case pgtype.Circle:
		if !val.Valid {
			return nil, true
		}
		return fmt.Sprintf("<%s,%g>", pt(val.P), val.R), true
	}
	return nil, false
}
