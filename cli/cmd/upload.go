package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/hookrelay/relay/pkg/webhook"
)

func newUploadCmd(a *app) *cobra.Command {
	var (
		kind     string
		mimeType string
		name     string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a PDF, image, audio or video file to a workflow",
		Long: `Upload a file to an n8n webhook as multipart form data.

The content kind is inferred from the file's content unless --kind is given.`,
		Example: `  relayctl upload invoice.pdf
  relayctl upload recording.m4a --kind audio --type audio/mp4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if len(data) == 0 {
				return fmt.Errorf("%s is empty", path)
			}

			detected := mimetype.Detect(data)
			fileKind, err := resolveKind(kind, detected)
			if err != nil {
				return err
			}
			if mimeType == "" {
				mimeType = detected.String()
			}
			if name == "" {
				name = filepath.Base(path)
			}

			return a.deliver(cmd, webhook.FileRequest{
				FileKind:  fileKind,
				Data:      webhook.EncodeDataURL(mimeType, data),
				FileName:  name,
				MimeType:  mimeType,
				SizeBytes: int64(len(data)),
				SentAt:    a.now(),
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "content kind: pdf, image, audio, video (default: detected)")
	cmd.Flags().StringVar(&mimeType, "type", "", "MIME type sent for the file (default: detected)")
	cmd.Flags().StringVar(&name, "name", "", "file name sent to the workflow (default: base name of <file>)")
	return cmd
}

// resolveKind validates an explicit kind or infers one from the detected type.
func resolveKind(explicit string, detected *mimetype.MIME) (webhook.Kind, error) {
	if explicit != "" {
		k, ok := webhook.ParseKind(strings.ToLower(explicit))
		if !ok || k == webhook.KindChat {
			return "", fmt.Errorf("unknown kind %q (use pdf, image, audio or video)", explicit)
		}
		return k, nil
	}

	for m := detected; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/pdf"):
			return webhook.KindPDF, nil
		case strings.HasPrefix(m.String(), "image/"):
			return webhook.KindImage, nil
		case strings.HasPrefix(m.String(), "audio/"):
			return webhook.KindAudio, nil
		case strings.HasPrefix(m.String(), "video/"):
			return webhook.KindVideo, nil
		}
	}
	return "", fmt.Errorf("cannot infer a kind for %s content; pass --kind", detected.String())
}
