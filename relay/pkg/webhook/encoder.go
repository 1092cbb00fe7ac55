package webhook

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Encoded is a request body ready to be POSTed to a webhook.
type Encoded struct {
	Body        []byte
	ContentType string
	// FileBytes is the decoded file size for uploads, zero for chat.
	FileBytes int64
	// FileMIME is the Content-Type used for the file part.
	FileMIME string
	FileName string
}

// ChatPayload is the JSON body a workflow receives for a chat message.
type ChatPayload struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// Encode dispatches on the request type.
func Encode(req OutboundRequest, now time.Time) (*Encoded, error) {
	switch r := req.(type) {
	case ChatRequest:
		return EncodeChat(r, now)
	case *ChatRequest:
		return EncodeChat(*r, now)
	case FileRequest:
		return EncodeFile(r, now)
	case *FileRequest:
		return EncodeFile(*r, now)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedRequest, req)
	}
}

// EncodeChat serializes a chat message as JSON.
func EncodeChat(req ChatRequest, now time.Time) (*Encoded, error) {
	sentAt := req.SentAt
	if sentAt.IsZero() {
		sentAt = now
	}
	body, err := json.Marshal(ChatPayload{
		Message:   req.Text,
		Timestamp: FormatTimestamp(sentAt),
		Source:    req.SourceTag,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}
	return &Encoded{Body: body, ContentType: "application/json"}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// EncodeFile decodes the file data and builds a multipart body with the parts
// file, fileName, timestamp and source.
func EncodeFile(req FileRequest, now time.Time) (*Encoded, error) {
	class, ok := ClassFor(req.FileKind)
	if !ok || !class.IsFile() {
		return nil, fmt.Errorf("%w: file kind %q", ErrUnsupportedRequest, req.FileKind)
	}

	data, err := DecodeFileData(req.Data)
	if err != nil {
		return nil, err
	}

	mimeType := ResolveMIME(class, req.MimeType, data)
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = "upload"
		if m := mimetype.Lookup(mimeType); m != nil {
			fileName += m.Extension()
		}
	}
	sentAt := req.SentAt
	if sentAt.IsZero() {
		sentAt = now
	}
	source := req.SourceTag
	if source == "" {
		source = class.Provenance
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(fileName)))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}

	fields := [][2]string{
		{"fileName", fileName},
		{"timestamp", FormatTimestamp(sentAt)},
		{"source", source},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write %s field: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return &Encoded{
		Body:        body.Bytes(),
		ContentType: writer.FormDataContentType(),
		FileBytes:   int64(len(data)),
		FileMIME:    mimeType,
		FileName:    fileName,
	}, nil
}

// ResolveMIME picks the file part Content-Type: the caller's declaration, then the
// class default, then a sniff of the content.
func ResolveMIME(class Class, declared string, data []byte) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	if class.DefaultMIME != "" {
		return class.DefaultMIME
	}
	return mimetype.Detect(data).String()
}

// DecodeFileData decodes a data URL or bare base64 string. The
// "data:<mediatype>;base64," prefix is optional. Standard and URL-safe
// alphabets are accepted, padded or not, and embedded whitespace is ignored.
func DecodeFileData(data string) ([]byte, error) {
	value := strings.TrimSpace(data)
	if value == "" {
		return nil, ErrEmptyFile
	}
	if strings.HasPrefix(strings.ToLower(value), "data:") {
		idx := strings.Index(value, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: data URL without payload", ErrInvalidEncoding)
		}
		value = value[idx+1:]
	} else if idx := strings.Index(value, ";base64,"); idx >= 0 {
		value = value[idx+len(";base64,"):]
	}
	value = strings.Join(strings.Fields(value), "")
	if value == "" {
		return nil, ErrEmptyFile
	}

	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		out, err := enc.DecodeString(value)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, lastErr)
}

// EncodeDataURL renders bytes as a data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
