// Package protocol defines the JSON frames exchanged with the studio page
// over /v1/studio.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

type ClientConnect struct {
	Type string `json:"type"`
}

type ClientDisconnect struct {
	Type string `json:"type"`
}

type ClientMute struct {
	Type  string `json:"type"`
	Muted bool   `json:"muted"`
}

// ClientAudio is one microphone chunk, typically audio/pcm;rate=16000.
type ClientAudio struct {
	Type     string `json:"type"`
	MIMEType string `json:"mime_type"`
	DataB64  string `json:"data_b64"`
}

// ClientFrame is one encoded webcam frame.
type ClientFrame struct {
	Type     string `json:"type"`
	MIMEType string `json:"mime_type"`
	DataB64  string `json:"data_b64"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "connect":
		var msg ClientConnect
		if err := decodeStrict(data, &msg); err != nil {
			return nil, badRequest("invalid connect", "")
		}
		return msg, nil
	case "disconnect":
		var msg ClientDisconnect
		if err := decodeStrict(data, &msg); err != nil {
			return nil, badRequest("invalid disconnect", "")
		}
		return msg, nil
	case "mute":
		var msg ClientMute
		if err := decodeStrict(data, &msg); err != nil {
			return nil, badRequest("invalid mute", "")
		}
		return msg, nil
	case "audio":
		var msg ClientAudio
		if err := decodeStrict(data, &msg); err != nil {
			return nil, badRequest("invalid audio", "")
		}
		if err := validateMedia(typ, msg.MIMEType, msg.DataB64, "audio/"); err != nil {
			return nil, err
		}
		return msg, nil
	case "frame":
		var msg ClientFrame
		if err := decodeStrict(data, &msg); err != nil {
			return nil, badRequest("invalid frame", "")
		}
		if err := validateMedia(typ, msg.MIMEType, msg.DataB64, "image/"); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func validateMedia(typ, mimeType, dataB64, prefix string) error {
	if strings.TrimSpace(dataB64) == "" {
		return badRequest(typ+".data_b64 is required", "data_b64")
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return badRequest(typ+".mime_type is required", "mime_type")
	}
	if !strings.HasPrefix(strings.ToLower(mimeType), prefix) {
		return unsupported(fmt.Sprintf("%s.mime_type must be %s*", typ, prefix), "mime_type")
	}
	return nil
}

type ServerStatus struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Connected bool   `json:"connected"`
	Muted     bool   `json:"muted"`
	Error     string `json:"error,omitempty"`
}

// ServerAudio carries speaking-session output audio.
type ServerAudio struct {
	Type     string `json:"type"`
	MIMEType string `json:"mime_type"`
	DataB64  string `json:"data_b64"`
}

type ServerChart struct {
	Type string `json:"type"`
	Spec any    `json:"spec"`
}

type ServerDisplay struct {
	Type    string `json:"type"`
	Kind    string `json:"kind,omitempty"`
	URL     string `json:"url,omitempty"`
	Visible bool   `json:"visible"`
}

type ServerRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Tool      string `json:"tool"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type ServerSpeech struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	MIMEType  string `json:"mime_type"`
	DataB64   string `json:"data_b64"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Close   bool   `json:"close,omitempty"`
}
