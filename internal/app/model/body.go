package model

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"strings"
)

const (
	ContentTypeJSON      = "application/json"
	ContentTypeText      = "text/plain"
	ContentTypeXML       = "application/xml"
	ContentTypeForm      = "application/x-www-form-urlencoded"
	ContentTypeMultipart = "multipart/form-data"
	ContentTypeBinary    = "application/octet-stream"
)

// Body is the payload of a request, response or message. A body that was never
// set is distinct from an empty one: only declared bodies take part in matching.
type Body struct {
	Present     bool
	ContentType string
	Content     []byte
}

func NewBody(contentType string, content []byte) Body {
	return Body{Present: true, ContentType: contentType, Content: content}
}

func (b Body) Clone() Body {
	b.Content = append([]byte(nil), b.Content...)
	return b
}

// MediaType returns the lowercase media type of the body without parameters,
// detecting one from the content when none was declared.
func (b Body) MediaType() string {
	if b.ContentType != "" {
		return MediaType(b.ContentType)
	}
	return MediaType(DetectContentType(b.Content))
}

func (b Body) IsJSON() bool {
	return IsJSONMediaType(b.MediaType())
}

func (b Body) IsText() bool {
	return IsTextMediaType(b.MediaType())
}

// MediaType strips parameters from a content type.
func MediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType
}

func IsJSONMediaType(mediaType string) bool {
	return mediaType == ContentTypeJSON || strings.HasSuffix(mediaType, "+json")
}

func IsXMLMediaType(mediaType string) bool {
	return mediaType == ContentTypeXML || mediaType == "text/xml" || strings.HasSuffix(mediaType, "+xml")
}

func IsTextMediaType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/") ||
		IsJSONMediaType(mediaType) ||
		IsXMLMediaType(mediaType) ||
		mediaType == ContentTypeForm ||
		mediaType == "application/javascript"
}

// DetectContentType sniffs the content type of an undeclared body.
func DetectContentType(content []byte) string {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return ContentTypeJSON
	}
	if len(trimmed) == 0 {
		return ContentTypeText
	}
	return http.DetectContentType(content)
}
