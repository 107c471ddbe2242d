package postback

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

const maxBodyBytes = 1 << 20

// Params is the flat view of a postback: query string and body merged,
// body values winning on conflict.
type Params map[string]string

// Get returns the trimmed value of key
func (p Params) Get(key string) string {
	return strings.TrimSpace(p[key])
}

// First returns the first non-empty value among keys
func (p Params) First(keys ...string) (string, string) {
	for _, k := range keys {
		if v := p.Get(k); v != "" {
			return k, v
		}
	}
	return "", ""
}

// ParseParams merges query-string and body parameters. JSON bodies are
// flattened one level deep; numbers keep their original text so that
// signatures computed by the provider still match.
func ParseParams(r *http.Request) (Params, error) {
	params := Params{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return params, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body map[string]any
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			if err == io.EOF {
				return params, nil
			}
			return params, fmt.Errorf("decode json body: %w", err)
		}
		for key, value := range body {
			params[key] = stringify(value)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return params, fmt.Errorf("parse multipart body: %w", err)
		}
		for key, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
	default:
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return params, fmt.Errorf("parse form body: %w", err)
		}
		for key, values := range r.PostForm {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
	}

	return params, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}
