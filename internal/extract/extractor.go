// Package extract locates image payloads inside raw mail messages.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/emersion/go-message/mail"
)

// Image is one extracted image payload
type Image struct {
	Name string
	Data []byte
}

// Extractor pulls image attachments out of raw RFC 822 messages. When a
// message carries no proper attachment, body parts with image-like
// filenames are scanned for embedded base64 content.
type Extractor struct {
	logger *slog.Logger
}

// New creates an extractor
func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger.With("component", "extractor")}
}

// Extract returns every image found in the raw message. A malformed
// part fails only that image; remaining parts are still returned.
func (e *Extractor) Extract(raw []byte) ([]Image, error) {
	images, err := e.fromAttachments(raw)
	if err != nil {
		return nil, err
	}
	if len(images) > 0 {
		return images, nil
	}

	e.logger.Debug("no image attachments, scanning body parts for embedded base64")
	return e.fromBodyParts(raw)
}

// fromAttachments walks the message's proper attachments
func (e *Extractor) fromAttachments(raw []byte) ([]Image, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	var images []Image
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			e.logger.Warn("failed to read message part", "error", err)
			break
		}

		h, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}

		filename, _ := h.Filename()
		if !IsImageName(filename) {
			continue
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			e.logger.Warn("failed to read attachment", "filename", filename, "error", err)
			continue
		}

		images = append(images, Image{Name: filename, Data: data})
	}

	return images, nil
}

// fromBodyParts scans non-attachment multipart sections whose filename
// looks like an image and recovers the bytes from their raw base64 text
func (e *Extractor) fromBodyParts(raw []byte) ([]Image, error) {
	header, body, err := splitHeader(raw)
	if err != nil {
		return nil, err
	}

	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, nil
	}

	return e.scanMultipart(body, params["boundary"])
}

func (e *Extractor) scanMultipart(body io.Reader, boundary string) ([]Image, error) {
	if boundary == "" {
		return nil, nil
	}

	var images []Image
	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextRawPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return images, fmt.Errorf("failed to read body part: %w", err)
		}

		mediaType, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if strings.HasPrefix(mediaType, "multipart/") {
			nested, err := e.scanMultipart(part, params["boundary"])
			images = append(images, nested...)
			if err != nil {
				return images, err
			}
			continue
		}

		filename := partFilename(part.Header)
		if !IsImageName(filename) || isAttachment(part.Header) {
			continue
		}

		serialized := serializePart(part.Header, part)
		data, err := DecodeSerializedPart(serialized)
		if err != nil {
			e.logger.Warn("failed to decode embedded image", "filename", filename, "error", err)
			continue
		}

		images = append(images, Image{Name: filename, Data: data})
	}

	return images, nil
}

// IsImageName reports whether a filename carries an image extension
func IsImageName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".png")
}

func isAttachment(h textproto.MIMEHeader) bool {
	disposition, _, _ := mime.ParseMediaType(h.Get("Content-Disposition"))
	return disposition == "attachment"
}

func partFilename(h textproto.MIMEHeader) string {
	_, params, _ := mime.ParseMediaType(h.Get("Content-Disposition"))
	if name := params["filename"]; name != "" {
		return name
	}
	_, params, _ = mime.ParseMediaType(h.Get("Content-Type"))
	return params["name"]
}

// serializePart rebuilds the part as raw text: MIME headers, a blank
// line, then the undecoded body
func serializePart(h textproto.MIMEHeader, body io.Reader) []byte {
	var buf bytes.Buffer
	for key, values := range h {
		for _, v := range values {
			buf.WriteString(key)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}
	buf.WriteString("\r\n")
	_, _ = io.Copy(&buf, body)
	return buf.Bytes()
}

// splitHeader separates the top-level message header from the body
func splitHeader(raw []byte) (textproto.MIMEHeader, io.Reader, error) {
	reader := textproto.NewReader(newBufReader(raw))
	header, err := reader.ReadMIMEHeader()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse message header: %w", err)
	}
	return header, reader.R, nil
}
