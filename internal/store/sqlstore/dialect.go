package sqlstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// dialect 收敛 Postgres 与 SQLite 的差异：占位符、列表列编码。
// 其余 SQL（ON CONFLICT ... DO UPDATE、COALESCE）两边通用。
type dialect struct {
	name   string
	driver string
	schema string
	// pgArrays=true 时列表列为 TEXT[]，否则为 JSON 文本。
	pgArrays bool
	dollar   bool
}

var (
	postgresDialect = dialect{name: "postgres", driver: "postgres", schema: schemaPostgres, pgArrays: true, dollar: true}
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite", schema: schemaSQLite}
)

// rebind 把 ? 占位符改写为 $1..$n（仅 Postgres）。SQL 文本中不含字面量 '?'。
func (d dialect) rebind(q string) string {
	if !d.dollar {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// listArg 空列表写 NULL，保证 COALESCE 能保留旧值。
func (d dialect) listArg(xs []string) any {
	if len(xs) == 0 {
		return nil
	}
	if d.pgArrays {
		return pq.StringArray(xs)
	}
	b, _ := json.Marshal(xs)
	return string(b)
}

// listScanner 读取 TEXT[] 或 JSON 文本列。
type listScanner struct {
	pg  bool
	out *[]string
}

func (s listScanner) Scan(src any) error {
	if src == nil {
		*s.out = nil
		return nil
	}
	if s.pg {
		var arr pq.StringArray
		if err := arr.Scan(src); err != nil {
			return err
		}
		*s.out = []string(arr)
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("list column: unexpected type %T", src)
	}
	var xs []string
	if err := json.Unmarshal(raw, &xs); err != nil {
		return err
	}
	*s.out = xs
	return nil
}

func (d dialect) listDest(out *[]string) listScanner { return listScanner{pg: d.pgArrays, out: out} }

// dateArg 统一以 YYYY-MM-DD 文本传参；Postgres 会按 DATE 列推断类型。
func dateArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format("2006-01-02")
}

// dateScanner 兼容 DATE（time.Time）与 TEXT（string/[]byte）。
type dateScanner struct{ out *time.Time }

func (s dateScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s.out = time.Time{}
		return nil
	case time.Time:
		*s.out = time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	default:
		return fmt.Errorf("date column: unexpected type %T", src)
	}
}

func (s dateScanner) parse(v string) error {
	if len(v) >= 10 {
		v = v[:10]
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return err
	}
	*s.out = t
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullPositive[T int | int64](v T) any {
	if v <= 0 {
		return nil
	}
	return v
}
