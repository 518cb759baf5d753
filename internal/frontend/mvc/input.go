package mvc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/marcus-qen/monfront/internal/shared/signing"
)

// ContentType selects how a controller's raw input is read.
type ContentType int

const (
	// ContentForm reads query and form-encoded body parameters.
	ContentForm ContentType = iota
	// ContentJSON reads query parameters plus a JSON object body.
	ContentJSON
)

const maxMultipartMemory = 1 << 20

const (
	msgUnauthorizedRequest = "Operation cannot be performed due to unauthorized request."
	msgJSONExpected        = "JSON array input is expected."
)

// Input is the raw input of a request together with messages produced while
// reading it. Raw is nil when the body could not be interpreted.
type Input struct {
	Raw      map[string]any
	Title    string
	Messages []Message
}

// ReadInput reads r according to ct.
func ReadInput(r *http.Request, ct ContentType, signer *signing.Signer) Input {
	if ct == ContentJSON {
		return ReadJSONInput(r)
	}
	return ReadFormInput(r, signer)
}

// ReadFormInput merges query and body parameters in submission order, body
// last, expanding bracket keys into nested values. Signed form data from a
// previous redirect replaces matching keys when its signature checks out.
func ReadFormInput(r *http.Request, signer *signing.Signer) Input {
	pairs, err := formPairs(r)
	if err != nil {
		return Input{}
	}

	raw := expandForm(pairs)
	in := Input{Raw: raw}

	if _, ok := raw["formdata"]; !ok {
		return in
	}

	data, _ := raw["data"].(string)
	sign, _ := raw["sign"].(string)
	blob, err := base64.StdEncoding.DecodeString(data)
	if err != nil || signer == nil || data == "" || !signer.Valid(FormDataDomain, blob, sign) {
		in.Messages = append(in.Messages, Message{Type: MessageError, Message: msgUnauthorizedRequest})
		return in
	}

	var decoded redirectBlob
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		in.Messages = append(in.Messages, Message{Type: MessageError, Message: msgUnauthorizedRequest})
		return in
	}
	in.Title = decoded.Title
	in.Messages = append(in.Messages, decoded.Messages...)
	for k, v := range decoded.Form {
		raw[k] = v
	}
	return in
}

// ActionParam returns the "action" parameter from the query or, failing that,
// from a form body. The body can still be read afterwards.
func ActionParam(r *http.Request) string {
	if action := r.URL.Query().Get("action"); action != "" {
		return action
	}
	pairs, err := formPairs(r)
	if err != nil {
		return ""
	}
	action := ""
	for _, p := range pairs {
		if p.key == "action" {
			action = p.value
		}
	}
	return action
}

type formPair struct {
	key, value string
}

// formPairs returns query parameters followed by form body parameters in the
// order they were sent. Multipart fields have no wire order kept by the
// parser and come sorted by name.
func formPairs(r *http.Request) ([]formPair, error) {
	pairs := parsePairs(r.URL.RawQuery)

	ct := r.Header.Get("Content-Type")
	if ct == "" || r.Body == nil {
		return pairs, nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, err
	}
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(r.MultipartForm.Value))
		for k := range r.MultipartForm.Value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range r.MultipartForm.Value[k] {
				pairs = append(pairs, formPair{key: k, value: v})
			}
		}
	case "application/x-www-form-urlencoded":
		if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
			return pairs, nil
		}
		body, err := bufferBody(r)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, parsePairs(string(body))...)
	}
	return pairs, nil
}

// bufferBody reads the whole body and puts a fresh reader back on r.
func bufferBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// parsePairs splits a query string into pairs, keeping their order. Pairs
// that fail to unescape are skipped.
func parsePairs(query string) []formPair {
	var pairs []formPair
	for query != "" {
		var part string
		part, query, _ = strings.Cut(query, "&")
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil || key == "" {
			continue
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		pairs = append(pairs, formPair{key: key, value: value})
	}
	return pairs
}

// ReadJSONInput returns the query parameters plus the top-level keys of the
// JSON object body. Query parameters win on conflict.
func ReadJSONInput(r *http.Request) Input {
	raw := expandForm(parsePairs(r.URL.RawQuery))
	in := Input{Raw: raw}

	if r.Body == nil {
		in.Messages = append(in.Messages, Message{Type: MessageError, Message: msgJSONExpected})
		return in
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return Input{}
	}

	if !gjson.ValidBytes(body) {
		in.Messages = append(in.Messages, Message{Type: MessageError, Message: msgJSONExpected})
		return in
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		in.Messages = append(in.Messages, Message{Type: MessageError, Message: msgJSONExpected})
		return in
	}
	parsed.ForEach(func(k, v gjson.Result) bool {
		if _, exists := raw[k.Str]; !exists {
			raw[k.Str] = jsonValue(v)
		}
		return true
	})
	return in
}

// jsonValue converts a parsed JSON value. Numbers stay json.Number so large
// ids keep every digit.
func jsonValue(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return json.Number(v.Raw)
	case gjson.String:
		return v.Str
	}
	if v.IsArray() {
		out := []any{}
		v.ForEach(func(_, item gjson.Result) bool {
			out = append(out, jsonValue(item))
			return true
		})
		return out
	}
	out := map[string]any{}
	v.ForEach(func(k, item gjson.Result) bool {
		out[k.Str] = jsonValue(item)
		return true
	})
	return out
}

// expandForm turns flat form pairs into nested input. "a[b][c]=x" becomes
// {"a": {"b": {"c": "x"}}}, "ids[]=1&ids[]=2" becomes {"ids": {"0": "1", "1": "2"}}.
// A repeated key keeps its last value.
func expandForm(pairs []formPair) map[string]any {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		path := splitKey(p.key)
		if path == nil {
			continue
		}
		setPath(out, path, p.value)
	}
	return out
}

// splitKey splits "a[b][]" into ["a", "b", ""]. It returns nil for keys that
// cannot be expanded.
func splitKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 {
		if open == 0 {
			return nil
		}
		return []string{key}
	}
	path := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			// trailing garbage after a bracket group is ignored
			break
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			// an unclosed bracket makes the whole key literal
			return []string{key}
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path
}

func setPath(node map[string]any, path []string, value string) {
	for i, seg := range path {
		if seg == "" {
			seg = nextIndex(node)
		}
		if i == len(path)-1 {
			node[seg] = value
			return
		}
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[seg] = child
		}
		node = child
	}
}

// nextIndex returns one past the largest integer key of node, or "0".
func nextIndex(node map[string]any) string {
	next := 0
	for k := range node {
		n, err := strconv.Atoi(k)
		if err == nil && n >= next && strconv.Itoa(n) == k {
			next = n + 1
		}
	}
	return strconv.Itoa(next)
}
