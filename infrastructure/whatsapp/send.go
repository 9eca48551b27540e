package whatsapp

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/disintegration/imaging"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	pkgError "github.com/wafilter/wafilter/pkg/error"
	"github.com/wafilter/wafilter/pkg/waid"
)

const outgoingThumbWidth = 100

// recipientJID turns an API-supplied address (bare phone, full JID or group
// ID) into something the wire accepts.
func recipientJID(to string) (types.JID, error) {
	src := waid.ParseSource(to)
	switch src.Type {
	case waid.SourceGroup:
		return types.JID{User: waid.NormalizeGroupID(src.ID), Server: types.GroupServer}, nil
	case waid.SourceContact:
		if src.IsLID {
			return types.JID{User: src.ID, Server: types.HiddenUserServer}, nil
		}
		phone := waid.NormalizePhone(src.ID)
		if phone == "" {
			return types.JID{}, pkgError.ValidationError("recipient phone is empty")
		}
		return types.JID{User: phone, Server: types.DefaultUserServer}, nil
	default:
		return types.JID{}, pkgError.ValidationError(fmt.Sprintf("cannot address %q", to))
	}
}

// SendText delivers a plain text message and returns the wire message ID.
func (a *Adapter) SendText(ctx context.Context, to, body string) (string, error) {
	if !a.client.IsConnected() {
		return "", pkgError.ErrNotConnected
	}
	jid, err := recipientJID(to)
	if err != nil {
		return "", err
	}
	msg := &waE2E.Message{Conversation: proto.String(body)}
	resp, err := a.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// SendMedia uploads the blob and sends it typed by its mime prefix. Anything
// that is not image, video or audio goes out as a document.
func (a *Adapter) SendMedia(ctx context.Context, to, caption, mimeType string, data []byte) (string, error) {
	if !a.client.IsConnected() {
		return "", pkgError.ErrNotConnected
	}
	jid, err := recipientJID(to)
	if err != nil {
		return "", err
	}
	msg, err := a.buildMediaMessage(ctx, caption, mimeType, data)
	if err != nil {
		return "", err
	}
	resp, err := a.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (a *Adapter) buildMediaMessage(ctx context.Context, caption, mimeType string, data []byte) (*waE2E.Message, error) {
	mediaType := whatsmeow.MediaDocument
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		mediaType = whatsmeow.MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		mediaType = whatsmeow.MediaVideo
	case strings.HasPrefix(mimeType, "audio/"):
		mediaType = whatsmeow.MediaAudio
	}

	uploaded, err := a.client.Upload(ctx, data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}

	switch mediaType {
	case whatsmeow.MediaImage:
		img := &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}
		if thumb := outgoingThumbnail(data); len(thumb) > 0 {
			img.JPEGThumbnail = thumb
		}
		return &waE2E.Message{ImageMessage: img}, nil
	case whatsmeow.MediaVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	case whatsmeow.MediaAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(mimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimeType),
			FileName:      proto.String(documentName(mimeType)),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	}
}

// documentName invents a filename for API sends, which only carry bytes and
// a mime type.
func documentName(mimeType string) string {
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return "file" + exts[0]
	}
	return "file.bin"
}

// outgoingThumbnail renders the small preview receivers show before
// downloading. Best effort, a send without one is still valid.
func outgoingThumbnail(data []byte) []byte {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	thumb := imaging.Resize(img, outgoingThumbWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return nil
	}
	return buf.Bytes()
}
