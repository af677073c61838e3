package chatgpt

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

type conversationRequest struct {
	Action          string                `json:"action"`
	Messages        []conversationMessage `json:"messages"`
	Model           string                `json:"model"`
	ParentMessageID string                `json:"parent_message_id"`
}

type conversationMessage struct {
	ID      string         `json:"id"`
	Role    string         `json:"role"`
	Content messageContent `json:"content"`
}

type messageContent struct {
	ContentType string   `json:"content_type"`
	Parts       []string `json:"parts"`
}

// conversationEvent is one `data:` frame of the reply stream. Each frame carries the whole
// message so far, not a delta.
type conversationEvent struct {
	Message *struct {
		ID      string         `json:"id"`
		Content messageContent `json:"content"`
	} `json:"message"`
	ConversationID string `json:"conversation_id"`
	Error          string `json:"error"`
}

const (
	doneMarker     = "[DONE]"
	maxStreamToken = 1 << 20
)

// readReply consumes a server-sent event stream and returns the last non-empty message text it carried.
func readReply(r io.Reader) (*Reply, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxStreamToken)

	var (
		messageID      string
		conversationID string
		text           string
		upstream       string
		data           []string
		done           bool
	)
	dispatch := func() {
		if len(data) == 0 {
			return
		}
		payload := strings.Join(data, "\n")
		data = data[:0]
		if payload == doneMarker {
			done = true
			return
		}
		var ev conversationEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// keep-alives and partial frames are skipped
			return
		}
		if ev.Error != "" {
			upstream = ev.Error
		}
		if ev.ConversationID != "" {
			conversationID = ev.ConversationID
		}
		if ev.Message == nil {
			return
		}
		if ev.Message.ID != "" {
			messageID = ev.Message.ID
		}
		// empty and metadata frames must not wipe text already received
		if len(ev.Message.Content.Parts) > 0 && ev.Message.Content.Parts[0] != "" {
			text = ev.Message.Content.Parts[0]
		}
	}

	for !done && scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			dispatch()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &Error{Message: "could not read response stream", Err: err}
	}
	dispatch()

	if text == "" {
		if upstream != "" {
			return nil, &Error{Message: upstream}
		}
		return nil, &Error{Message: "response stream carried no message"}
	}
	return &Reply{ID: messageID, ConversationID: conversationID, Text: text}, nil
}
