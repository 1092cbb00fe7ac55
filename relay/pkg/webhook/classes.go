package webhook

// Class configures one relay surface. The four upload routes differ only in these
// values, so a single generic handler serves all of them.
type Class struct {
	Kind Kind
	// Route is the relay endpoint path for this class.
	Route string
	// ContentField is the required request body field carrying the content.
	ContentField string
	// Label is used in log lines and error messages ("PDF", "audio", ...).
	Label string
	// DefaultMIME applies when the caller omits fileType. Empty means sniff the bytes.
	DefaultMIME string
	// Provenance is the fixed `source` value sent to the workflow.
	Provenance string
	// ResponseSource is the `source` value in the relay's envelope.
	ResponseSource string
	// UserAgent identifies the relay variant to the workflow.
	UserAgent string
	// InternalError is the envelope error for unexpected faults.
	InternalError string
}

// IsFile reports whether the class carries a binary upload.
func (c Class) IsFile() bool {
	return c.Kind != KindChat
}

// Chat source tags distinguish which path a chat message took.
const (
	SourceChatDirect  = "hookrelay-chat-frontend-direct"
	SourceChatRelay   = "hookrelay-chat-frontend-proxy"
	SourceWebhookTest = "hookrelay-webhook-test"
)

var classes = []Class{
	{
		Kind:           KindChat,
		Route:          "/api/webhook/n8n",
		ContentField:   "message",
		Label:          "chat",
		Provenance:     "hookrelay-chat-backend",
		ResponseSource: "hookrelay-backend-proxy",
		UserAgent:      "HookRelay-ChatBot-Proxy/1.0",
		InternalError:  "Internal server error while proxying to n8n webhook",
	},
	{
		Kind:           KindPDF,
		Route:          "/api/upload-pdf",
		ContentField:   "file",
		Label:          "PDF",
		DefaultMIME:    "application/pdf",
		Provenance:     "hookrelay-pdf-uploader",
		ResponseSource: "hookrelay-pdf-backend-proxy",
		UserAgent:      "HookRelay-PDF-Proxy/1.0",
		InternalError:  "Internal server error while processing PDF upload",
	},
	{
		Kind:           KindImage,
		Route:          "/api/upload-image",
		ContentField:   "file",
		Label:          "image",
		Provenance:     "hookrelay-image-uploader",
		ResponseSource: "hookrelay-image-backend-proxy",
		UserAgent:      "HookRelay-Image-Proxy/1.0",
		InternalError:  "Internal server error while processing image upload",
	},
	{
		Kind:           KindAudio,
		Route:          "/api/upload-audio",
		ContentField:   "file",
		Label:          "audio",
		DefaultMIME:    "audio/mpeg",
		Provenance:     "hookrelay-audio-uploader",
		ResponseSource: "hookrelay-audio-backend-proxy",
		UserAgent:      "HookRelay-Audio-Proxy/1.0",
		InternalError:  "Internal server error while processing audio upload",
	},
	{
		Kind:           KindVideo,
		Route:          "/api/upload-video",
		ContentField:   "file",
		Label:          "video",
		DefaultMIME:    "video/mp4",
		Provenance:     "hookrelay-video-uploader",
		ResponseSource: "hookrelay-video-backend-proxy",
		UserAgent:      "HookRelay-Video-Proxy/1.0",
		InternalError:  "Internal server error while processing video upload",
	},
}

// Classes returns every relay class in route registration order.
func Classes() []Class {
	out := make([]Class, len(classes))
	copy(out, classes)
	return out
}

// ClassFor looks up the class for a kind.
func ClassFor(k Kind) (Class, bool) {
	for _, c := range classes {
		if c.Kind == k {
			return c, true
		}
	}
	return Class{}, false
}

// ParseKind maps user input ("pdf", "image", ...) to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, c := range classes {
		if string(c.Kind) == s {
			return c.Kind, true
		}
	}
	return "", false
}
