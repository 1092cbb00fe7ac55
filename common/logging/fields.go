package logging

import (
	"log/slog"
	"net/url"
	"time"
)

// Field names shared by the relay and the CLI.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldIP        = "ip"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldWebhook   = "webhook"
	FieldKind      = "kind"
	FieldShape     = "payload"
	FieldRelay     = "relay"
	FieldBytes     = "bytes"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration records d in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns an attribute for err. A nil error logs as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Webhook logs a webhook URL without its query string or credentials, which
// n8n deployments sometimes use for tokens.
func Webhook(raw string) slog.Attr {
	return slog.String(FieldWebhook, RedactURL(raw))
}

func Kind(kind string) slog.Attr {
	return slog.String(FieldKind, kind)
}

// Shape logs the payload description of an outbound request, never its content.
func Shape(s interface{ Shape() string }) slog.Attr {
	if s == nil {
		return slog.String(FieldShape, "<nil>")
	}
	return slog.String(FieldShape, s.Shape())
}

func RelayPath(endpoint string) slog.Attr {
	return slog.String(FieldRelay, RedactURL(endpoint))
}

func Bytes(n int64) slog.Attr {
	return slog.Int64(FieldBytes, n)
}

// RedactURL strips user info and the query string from raw.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
