package log

import "time"

// Field is a single structured key/value attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// ComponentKey tags the subsystem a log line comes from.
const ComponentKey = "component"

func Str(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.Format(time.RFC3339Nano)}
}

func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Err attaches an error under the "error" key. A nil error yields an empty string.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component tags the logger with a component name.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }
