package matrix

import (
	"strings"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/gerald/common/spec/envelope"
)

// ToMessage converts a Matrix room message into an envelope.Message. It
// returns false for events the bot should not see at all: non-text
// content and edits of earlier messages.
//
// FromBot is set for the bot's own messages and for m.notice messages,
// which Matrix bots conventionally use. Mentioned is set when the event's
// m.mentions lists self, or the body names the bot by localpart or
// botName.
func ToMessage(evt *event.Event, self id.UserID, botName string) (*envelope.Message, bool) {
	content := evt.Content.AsMessage()
	if content == nil {
		return nil, false
	}
	switch content.MsgType {
	case event.MsgText, event.MsgNotice, event.MsgEmote:
	default:
		return nil, false
	}
	if content.RelatesTo != nil && content.RelatesTo.GetReplaceID() != "" {
		return nil, false
	}

	body := content.Body
	if content.RelatesTo != nil && content.RelatesTo.GetReplyTo() != "" {
		body = stripReplyFallback(body)
	}

	msg := &envelope.Message{
		EventID:    evt.ID.String(),
		SenderID:   evt.Sender.String(),
		ChannelID:  evt.RoomID.String(),
		Text:       body,
		FromBot:    evt.Sender == self || content.MsgType == event.MsgNotice,
		Mentioned:  mentions(content, body, self, botName),
		ReceivedAt: time.UnixMilli(evt.Timestamp),
	}
	if evt.Timestamp == 0 {
		msg.ReceivedAt = time.Now()
	}
	return msg, true
}

func mentions(content *event.MessageEventContent, body string, self id.UserID, botName string) bool {
	if content.Mentions != nil {
		for _, u := range content.Mentions.UserIDs {
			if u == self {
				return true
			}
		}
	}
	if strings.Contains(content.FormattedBody, "https://matrix.to/#/"+self.String()) {
		return true
	}
	lower := strings.ToLower(body)
	if localpart, _, err := self.Parse(); err == nil && localpart != "" {
		if strings.Contains(lower, strings.ToLower(localpart)) {
			return true
		}
	}
	return botName != "" && strings.Contains(lower, strings.ToLower(botName))
}

// stripReplyFallback drops the "> <@user> quoted" lines clients prepend
// to replies, so the bot does not learn words from the quoted message.
func stripReplyFallback(body string) string {
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], ">") {
		i++
	}
	if i < len(lines) && strings.TrimSpace(lines[i]) == "" && i > 0 {
		i++
	}
	return strings.Join(lines[i:], "\n")
}
