package engine

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gzhole/memscope/internal/model"
)

// childrenKey holds nested rows in Volatility 3 JSON renderer output.
const childrenKey = "__children"

// ParseJSON decodes engine stdout as a JSON array of objects. Nested
// __children rows are flattened in order after their parent. It returns
// false when the output is not such an array.
func ParseJSON(out []byte) ([]model.RawRecord, bool) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 || out[0] != '[' {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	var rows []map[string]interface{}
	if err := dec.Decode(&rows); err != nil {
		return nil, false
	}

	recs := make([]model.RawRecord, 0, len(rows))
	for _, row := range rows {
		recs = flatten(recs, row)
	}
	return recs, true
}

func flatten(dst []model.RawRecord, row map[string]interface{}) []model.RawRecord {
	children, _ := row[childrenKey].([]interface{})
	rec := make(model.RawRecord, len(row))
	for k, v := range row {
		if k != childrenKey {
			rec[k] = v
		}
	}
	dst = append(dst, rec)
	for _, c := range children {
		if child, ok := c.(map[string]interface{}); ok {
			dst = flatten(dst, child)
		}
	}
	return dst
}

// minColumns is the fewest whitespace-separated fields a text row needs.
var minColumns = map[model.Category]int{
	model.CategoryProcesses: 4,
	model.CategoryNetwork:   4,
	model.CategoryModules:   3,
	model.CategoryRegions:   3,
	model.CategoryArtifacts: 1,
}

// ParseText parses fixed-column engine output. The first line is a header;
// blank lines and rows with too few columns are skipped. Numeric columns
// that do not parse become 0.
func ParseText(cat model.Category, out []byte) []model.RawRecord {
	var recs []model.RawRecord
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < minColumns[cat] {
			continue
		}
		if rec := parseRow(cat, line, parts); rec != nil {
			recs = append(recs, rec)
		}
	}
	return recs
}

func parseRow(cat model.Category, line string, parts []string) model.RawRecord {
	switch cat {
	case model.CategoryProcesses:
		return model.RawRecord{
			"pid":          atoi(parts[0]),
			"name":         parts[1],
			"parent_pid":   atoi(parts[2]),
			"command_line": strings.Join(parts[3:], " "),
		}
	case model.CategoryNetwork:
		return model.RawRecord{
			"local_address":  parts[0],
			"local_port":     atoi(parts[1]),
			"remote_address": parts[2],
			"remote_port":    atoi(parts[3]),
			"protocol":       column(parts, 4, "tcp"),
			"state":          column(parts, 5, "unknown"),
		}
	case model.CategoryModules:
		return model.RawRecord{
			"name":         parts[0],
			"base_address": parts[1],
			"size":         atoi(parts[2]),
			"path":         strings.Join(parts[3:], " "),
		}
	case model.CategoryRegions:
		return model.RawRecord{
			"start_address": parts[0],
			"end_address":   parts[1],
			"size":          atoi(parts[2]),
			"protection":    column(parts, 3, "unknown"),
			"type":          column(parts, 4, "unknown"),
		}
	case model.CategoryArtifacts:
		return model.RawRecord{
			"type":        "malfind",
			"description": line,
			"location":    "memory",
			"confidence":  0.5,
			"severity":    "medium",
		}
	}
	return nil
}

func column(parts []string, i int, def string) string {
	if i < len(parts) {
		return parts[i]
	}
	return def
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
