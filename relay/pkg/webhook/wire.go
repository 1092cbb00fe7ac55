package webhook

import "encoding/json"

// RelayRequest is the JSON body accepted by every relay route. Chat routes read
// Message; upload routes read File and its metadata.
type RelayRequest struct {
	WebhookURL string `json:"webhookUrl,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	File       string `json:"file,omitempty"`
	FileType   string `json:"fileType,omitempty"`
	FileSize   *int64 `json:"fileSize,omitempty"`
	Message    string `json:"message,omitempty"`
	Source     string `json:"source,omitempty"`
}

// RelayEnvelope is the relay's answer. Success is false for every failure,
// including remote non-2xx statuses, which still travel with HTTP 200.
type RelayEnvelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Details    any             `json:"details,omitempty"`
	Timestamp  string          `json:"timestamp"`
	Source     string          `json:"source,omitempty"`
	WebhookURL string          `json:"webhookUrl,omitempty"`
	FileName   string          `json:"fileName,omitempty"`
	FileSize   *int64          `json:"fileSize,omitempty"`
	Received   map[string]any  `json:"received,omitempty"`
}

// RemoteErrorDetails accompanies a remote non-2xx answer.
type RemoteErrorDetails struct {
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	WebhookURL string `json:"webhookUrl"`
}

// EnvelopeData returns the body as the envelope's data field. JSON bodies pass
// through untouched; anything else is wrapped as {"message": body, "raw": body}.
func EnvelopeData(body string) json.RawMessage {
	if _, err := ParseBody(body); err == nil {
		return json.RawMessage(body)
	}
	wrapped, err := json.Marshal(map[string]string{"message": body, "raw": body})
	if err != nil {
		return nil
	}
	return wrapped
}

// NewRelayRequest builds the relay body for an outbound request.
func NewRelayRequest(req OutboundRequest, target TargetEndpoint) (*RelayRequest, error) {
	switch r := req.(type) {
	case ChatRequest:
		return chatRelayRequest(r, target), nil
	case *ChatRequest:
		return chatRelayRequest(*r, target), nil
	case FileRequest:
		return fileRelayRequest(r, target), nil
	case *FileRequest:
		return fileRelayRequest(*r, target), nil
	default:
		return nil, ErrUnsupportedRequest
	}
}

func chatRelayRequest(r ChatRequest, target TargetEndpoint) *RelayRequest {
	out := &RelayRequest{
		WebhookURL: target.URL,
		Message:    r.Text,
		Source:     r.SourceTag,
	}
	if out.Source == "" {
		out.Source = SourceChatRelay
	}
	if !r.SentAt.IsZero() {
		out.Timestamp = FormatTimestamp(r.SentAt)
	}
	return out
}

func fileRelayRequest(r FileRequest, target TargetEndpoint) *RelayRequest {
	out := &RelayRequest{
		WebhookURL: target.URL,
		FileName:   r.FileName,
		File:       r.Data,
		FileType:   r.MimeType,
		Source:     r.SourceTag,
	}
	if r.SizeBytes > 0 {
		size := r.SizeBytes
		out.FileSize = &size
	}
	if !r.SentAt.IsZero() {
		out.Timestamp = FormatTimestamp(r.SentAt)
	}
	return out
}
