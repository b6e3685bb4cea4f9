package log

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

const TimeFormat = time.RFC3339Nano

func FormatTime(t time.Time) string {
	return t.Format(TimeFormat)
}

// DefaultPayloadLimit is the number of leading bytes of a command payload that
// [NewHook] keeps when logging it.
const DefaultPayloadLimit = 64

// Payload renders guest command bytes as hex. Anything beyond limit bytes is
// replaced with a count of what was left out. A limit <= 0 keeps everything.
func Payload(b []byte, limit int) string {
	if limit <= 0 || len(b) <= limit {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[:limit]) + "...(+" + strconv.Itoa(len(b)-limit) + " bytes)"
}

// marshal encodes v as compact JSON, leaving '<', '>' and '&' alone.
func marshal(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}
