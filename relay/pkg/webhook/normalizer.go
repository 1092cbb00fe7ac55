package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// EmptyResponseWarning replaces an explicitly empty reply so a silent workflow is
// visible to the user.
const EmptyResponseWarning = "Warning: the workflow returned an empty response. Check that the workflow's " +
	"response node returns data."

// Rule resolves a display message from a candidate payload. Rules are tried in
// order and the first whose Match returns true wins.
type Rule struct {
	Name    string
	Match   func(payload any) bool
	Extract func(payload any) string
}

// Rules is the resolution order for display messages.
var Rules = []Rule{
	{
		Name:    "string",
		Match:   func(p any) bool { _, ok := p.(string); return ok },
		Extract: func(p any) string { return orWarning(p.(string)) },
	},
	fieldRule("response"),
	fieldRule("output"),
	fieldRule("text"),
	fieldRule("message"),
	{
		Name:    "data",
		Match:   func(p any) bool { return truthy(field(p, "data")) },
		Extract: func(p any) string { return stringify(field(p, "data")) },
	},
	{
		// Present at all, not just truthy: an empty raw string is the silent-failure case.
		Name: "raw",
		Match: func(p any) bool {
			obj, ok := p.(map[string]any)
			if !ok {
				return false
			}
			_, ok = obj["raw"]
			return ok
		},
		Extract: func(p any) string {
			raw := field(p, "raw")
			if !truthy(raw) {
				return EmptyResponseWarning
			}
			return display(raw)
		},
	},
	{
		Name:    "payload",
		Match:   func(any) bool { return true },
		Extract: stringify,
	},
}

func fieldRule(name string) Rule {
	return Rule{
		Name:    name,
		Match:   func(p any) bool { return truthy(field(p, name)) },
		Extract: func(p any) string { return display(field(p, name)) },
	}
}

// ResolveMessage applies Rules to payload and reports which rule matched.
func ResolveMessage(payload any) (string, string) {
	for _, rule := range Rules {
		if rule.Match(payload) {
			return rule.Extract(payload), rule.Name
		}
	}
	return stringify(payload), "payload"
}

// ParseBody decodes text as a single JSON value. Numbers are kept as json.Number.
func ParseBody(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// NormalizeOptions describes where a raw response came from.
type NormalizeOptions struct {
	Endpoint string
	Path     Path
	Now      time.Time
}

// Normalize interprets a raw response. It never fails: anything it cannot interpret
// still produces a result with a displayable message or error.
func Normalize(raw *RawRemoteResponse, opts NormalizeOptions) NormalizedResult {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	result := NormalizedResult{
		EndpointUsed: opts.Endpoint,
		Path:         opts.Path,
		CompletedAt:  now.UTC(),
	}
	if raw == nil {
		result.ErrorDetail = "no response received"
		return result
	}
	result.HTTPStatus = raw.HTTPStatus

	var candidate any
	parsed, err := ParseBody(raw.BodyText)
	if err == nil {
		candidate = parsed
		result.RawPayload = parsed
	} else {
		candidate = map[string]any{"message": raw.BodyText, "raw": raw.BodyText}
	}

	if opts.Path == PathRelay {
		if env, ok := candidate.(map[string]any); ok {
			if success, present := env["success"].(bool); present && !success {
				result.ErrorDetail = envelopeError(env, raw)
				if status, ok := remoteStatus(env); ok {
					result.HTTPStatus = status
				}
				return result
			}
			if data, present := env["data"]; present && truthy(data) {
				candidate = data
				result.RawPayload = data
			}
		}
	}

	if !raw.OK() {
		if opts.Path == PathRelay {
			result.ErrorDetail = fmt.Sprintf("relay returned %d: %s", raw.HTTPStatus, raw.StatusText)
		} else {
			result.ErrorDetail = fmt.Sprintf("n8n webhook returned %d: %s", raw.HTTPStatus, raw.StatusText)
		}
		return result
	}

	result.OK = true
	result.Message, _ = ResolveMessage(candidate)
	return result
}

// envelopeError renders a relay failure envelope as a single line.
func envelopeError(env map[string]any, raw *RawRemoteResponse) string {
	msg := display(env["error"])
	if msg == "" {
		msg = fmt.Sprintf("relay returned %d: %s", raw.HTTPStatus, raw.StatusText)
	}
	if details, ok := env["details"]; ok && details != nil {
		if s, isString := details.(string); isString {
			return msg + ": " + s
		}
		return msg + " " + stringify(details)
	}
	return msg
}

func remoteStatus(env map[string]any) (int, bool) {
	details, ok := env["details"].(map[string]any)
	if !ok {
		return 0, false
	}
	n, ok := details["status"].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func field(p any, name string) any {
	obj, ok := p.(map[string]any)
	if !ok {
		return nil
	}
	return obj[name]
}

// truthy follows JavaScript truthiness, which is what workflow authors write against.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

// display renders a field value: strings verbatim, everything else as JSON.
func display(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return stringify(v)
	}
}

func stringify(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func orWarning(s string) string {
	if s == "" {
		return EmptyResponseWarning
	}
	return s
}
