package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// JSONFormatter renders one JSON object per entry.
type JSONFormatter struct {
	// TimestampFormat defaults to time.RFC3339Nano.
	TimestampFormat string
}

func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	tf := f.TimestampFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	out := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		out[k] = v
	}
	out["ts"] = entry.Timestamp.Format(tf)
	out["level"] = entry.Level.String()
	out["msg"] = entry.Message
	if entry.Caller != "" {
		out["caller"] = entry.Caller
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextFormatter renders `ts LEVEL msg k=v ...` with keys sorted.
type TextFormatter struct {
	TimestampFormat string
	ShowCaller      bool
}

func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	tf := f.TimestampFormat
	if tf == "" {
		tf = "2006-01-02T15:04:05.000Z07:00"
	}
	var buf bytes.Buffer
	buf.WriteString(entry.Timestamp.Format(tf))
	buf.WriteByte(' ')
	buf.WriteString(fmt.Sprintf("%-5s", entry.Level.String()))
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(' ')
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(fmt.Sprint(entry.Fields[k]))
	}
	if f.ShowCaller && entry.Caller != "" {
		buf.WriteString(" caller=")
		buf.WriteString(entry.Caller)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
