// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lilliput

import (
	"fmt"
	"sort"
	"strings"
)

// FormatFrame formats a frame into a human-readable string. The payload is
// shown as a response when it decodes as one, as a request otherwise, and as a
// hex dump when it is neither.
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")

	if resp, err := UnmarshalResponse(f.payload); err == nil && resp.Req != "" {
		status := resp.Status
		if status == "" {
			status = ResponseOK
		}
		return fmt.Sprintf("[%s] RESPONSE %s status=%s len=%d\n%s", timestamp, resp.Req, status, f.length, FormatValue(resp.Value))
	}

	if req, err := UnmarshalRequest(f.payload); err == nil {
		return fmt.Sprintf("[%s] REQUEST %s len=%d\n", timestamp, req.String(), f.length)
	}

	return fmt.Sprintf("[%s] UNKNOWN len=%d\n%s", timestamp, f.length, formatHexDump(f.payload))
}

// FormatValue renders a response value, one key per line for structured values
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 0 {
			return "  (empty)\n"
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var s strings.Builder
		for _, k := range keys {
			s.WriteString(fmt.Sprintf("  %s: %v\n", k, formatScalar(val[k])))
		}
		return s.String()
	case []interface{}:
		var s strings.Builder
		for i, item := range val {
			s.WriteString(fmt.Sprintf("  [%d]: %v\n", i, formatScalar(item)))
		}
		return s.String()
	default:
		return fmt.Sprintf("  Value: %v\n", formatScalar(v))
	}
}

func formatScalar(v interface{}) string {
	if v == nil {
		return "(none)"
	}
	return fmt.Sprint(v)
}

func formatHexDump(payload []byte) string {
	result := "  Payload: "
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
