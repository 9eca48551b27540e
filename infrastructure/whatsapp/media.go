package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/wafilter/wafilter/pkg/waid"
)

const (
	maxConcurrentDownloads = 4
	downloadTimeout        = 60 * time.Second
	generatedThumbWidth    = 320
)

type mediaPart struct {
	content whatsmeow.DownloadableMessage
	mime    string
	thumb   []byte
	isImage bool
}

// unwrapContent peels ephemeral/view-once/captioned-document wrappers off a
// raw message. Bounded because wrappers have been seen nested.
func unwrapContent(msg *waE2E.Message) *waE2E.Message {
	for i := 0; i < 4 && msg != nil; i++ {
		switch {
		case msg.GetEphemeralMessage() != nil:
			msg = msg.GetEphemeralMessage().GetMessage()
		case msg.GetViewOnceMessage() != nil:
			msg = msg.GetViewOnceMessage().GetMessage()
		case msg.GetViewOnceMessageV2() != nil:
			msg = msg.GetViewOnceMessageV2().GetMessage()
		case msg.GetDocumentWithCaptionMessage() != nil:
			msg = msg.GetDocumentWithCaptionMessage().GetMessage()
		default:
			return msg
		}
	}
	return msg
}

func extractMedia(msg *waE2E.Message) *mediaPart {
	if msg == nil {
		return nil
	}
	switch {
	case msg.GetImageMessage() != nil:
		m := msg.GetImageMessage()
		return &mediaPart{content: m, mime: m.GetMimetype(), thumb: m.GetJPEGThumbnail(), isImage: true}
	case msg.GetVideoMessage() != nil:
		m := msg.GetVideoMessage()
		return &mediaPart{content: m, mime: m.GetMimetype(), thumb: m.GetJPEGThumbnail()}
	case msg.GetAudioMessage() != nil:
		m := msg.GetAudioMessage()
		return &mediaPart{content: m, mime: m.GetMimetype()}
	case msg.GetDocumentMessage() != nil:
		m := msg.GetDocumentMessage()
		return &mediaPart{content: m, mime: m.GetMimetype(), thumb: m.GetJPEGThumbnail()}
	case msg.GetStickerMessage() != nil:
		m := msg.GetStickerMessage()
		return &mediaPart{content: m, mime: m.GetMimetype()}
	}
	return nil
}

// downloadMedia fetches the full bytes in the background, bounded by a
// semaphore so a burst of media does not starve the socket. Failures fall
// back to persisting the inline thumbnail so the history keeps something.
func (a *Adapter) downloadMedia(evt *events.Message) {
	if a.media == nil {
		return
	}
	part := extractMedia(unwrapContent(evt.Message))
	if part == nil {
		return
	}
	sourceID := waid.ParseSource(evt.Info.Chat.String()).ID
	messageID := evt.Info.ID

	go func() {
		a.downloadSem <- struct{}{}
		defer func() { <-a.downloadSem }()

		ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
		defer cancel()

		data, err := a.client.Download(ctx, part.content)
		if err != nil {
			logrus.Warnf("[MEDIA] download %s failed: %v", messageID, err)
			if len(part.thumb) > 0 {
				if handle := a.media.Save(messageID, part.thumb, "image/jpeg"); handle != "" {
					a.attachMedia(sourceID, messageID, handle)
				}
			}
			return
		}

		handle := a.media.Save(messageID, data, part.mime)
		if handle == "" {
			return
		}
		a.attachMedia(sourceID, messageID, handle)

		// images without an inline thumbnail get one generated from the
		// full bytes
		if part.isImage && len(part.thumb) == 0 && a.messages != nil {
			if uri := thumbnailDataURI(data); uri != "" {
				a.messages.SetThumbnail(sourceID, messageID, uri)
			}
		}
	}()
}

func (a *Adapter) attachMedia(sourceID, messageID, handle string) {
	if a.messages == nil {
		return
	}
	if !a.messages.AttachMedia(sourceID, messageID, handle) {
		logrus.Debugf("[MEDIA] message %s gone before media %s arrived", messageID, handle)
	}
}

func thumbnailDataURI(data []byte) string {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	thumb := imaging.Resize(img, generatedThumbWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
