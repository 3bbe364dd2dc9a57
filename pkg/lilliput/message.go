// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lilliput

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// ErrEmptyCommand is returned by ParseCommand for blank input.
var ErrEmptyCommand = errors.New("lilliput: empty command")

// Request is a parsed command ready for encoding.
type Request struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Query bool
	Args  []string
}

// String formats the request back to its text form
func (r Request) String() string {
	if r.Query {
		return r.Name + QuerySuffix
	}
	if len(r.Args) == 0 {
		return r.Name
	}
	return r.Name + " " + strings.Join(r.Args, ",")
}

// ParseCommand parses command text of the form "name arg1,arg2,..." or
// "name?" for a query.
func ParseCommand(text string) (Request, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Request{}, ErrEmptyCommand
	}

	name, rest, _ := strings.Cut(text, " ")
	req := Request{Name: strings.ToLower(name)}

	if strings.HasSuffix(req.Name, QuerySuffix) {
		req.Name = strings.TrimSuffix(req.Name, QuerySuffix)
		req.Query = true
		if req.Name == "" {
			return Request{}, fmt.Errorf("lilliput: query without command name: %q", text)
		}
		return req, nil
	}

	rest = strings.TrimSpace(rest)
	if rest != "" {
		for _, arg := range strings.Split(rest, ",") {
			req.Args = append(req.Args, strings.TrimSpace(arg))
		}
	}
	return req, nil
}

// Response is a decoded device response.
//
// Value is a scalar (string, int64, float64 or nil) keyed by Req, or a
// structured value (map[string]interface{} or []interface{}) carrying several
// state keys at once.
type Response struct {
	Session string
	Req     string
	Status  string
	Value   interface{}
	Err     error
}

// OK reports whether the response decoded cleanly with a success status.
// An absent status counts as success.
func (r Response) OK() bool {
	return r.Err == nil && (r.Status == "" || r.Status == ResponseOK)
}

type wireResponse struct {
	_      struct{} `cbor:",toarray"`
	Req    string
	Status string
	Value  interface{}
}

// MarshalRequest encodes a request as a CBOR array [name, query, args].
func MarshalRequest(req Request) ([]byte, error) {
	data, err := cbor.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return data, nil
}

// UnmarshalRequest decodes a CBOR request payload.
func UnmarshalRequest(data []byte) (Request, error) {
	var req Request
	if len(data) == 0 {
		return req, fmt.Errorf("empty CBOR payload")
	}
	if err := cbor.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to decode request: %w", err)
	}
	if req.Name == "" {
		return req, fmt.Errorf("request without command name")
	}
	return req, nil
}

// MarshalResponse encodes a response as a CBOR array [req, status, value].
func MarshalResponse(resp Response) ([]byte, error) {
	data, err := cbor.Marshal(wireResponse{Req: resp.Req, Status: resp.Status, Value: resp.Value})
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return data, nil
}

// UnmarshalResponse decodes a CBOR response payload. Values are normalized so
// that callers only ever see string, int64, float64, nil, map[string]interface{}
// and []interface{}.
func UnmarshalResponse(data []byte) (Response, error) {
	if len(data) == 0 {
		return Response{}, fmt.Errorf("empty CBOR payload")
	}

	var wire wireResponse
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}

	value, err := normalizeValue(wire.Value)
	if err != nil {
		return Response{}, err
	}

	return Response{Req: wire.Req, Status: wire.Status, Value: value}, nil
}

func normalizeValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return float64(val), nil
		}
		return int64(val), nil
	case int64:
		return val, nil
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			n, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			n, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			n, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported response value type %T", v)
	}
}
