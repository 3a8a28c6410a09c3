package model

// Meta webhook wire types. Only the fields the pipeline consumes are
// declared; the platform sends far more and encoding/json drops the rest.

// WebhookPayload is the body of an Instagram webhook POST.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry is one page-scoped batch of webhook events.
type WebhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging,omitempty"`
	Changes   []ChangeEvent    `json:"changes,omitempty"`
}

// MessagingEvent is a direct-message event.
type MessagingEvent struct {
	Sender    Principal    `json:"sender"`
	Recipient Principal    `json:"recipient"`
	Timestamp int64        `json:"timestamp"`
	Message   *MessageBody `json:"message,omitempty"`
}

// Principal identifies a messaging participant.
type Principal struct {
	ID string `json:"id"`
}

// MessageBody is the message part of a messaging event. IsEcho marks the
// platform's copy of our own outbound sends.
type MessageBody struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text,omitempty"`
	IsEcho      bool         `json:"is_echo,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a media attachment on a direct message.
type Attachment struct {
	Type    string            `json:"type"`
	Payload AttachmentPayload `json:"payload"`
}

// AttachmentPayload carries the shared-media details of an attachment.
type AttachmentPayload struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	ReelVideoID string `json:"reel_video_id,omitempty"`
}

// ChangeEvent is a field-change notification (mentions, comments).
type ChangeEvent struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue is the payload of a change notification.
type ChangeValue struct {
	MediaID   string `json:"media_id,omitempty"`
	Permalink string `json:"permalink,omitempty"`
}

// attachmentTypeReel is the attachment type for a shared Instagram reel.
const attachmentTypeReel = "ig_reel"

// Submissions extracts every runnable unit of work from a webhook payload.
// DM events carrying a reel attachment become DirectMessage submissions
// keyed by message mid; media changes become Webhook submissions keyed by
// media id. Echo messages and unrelated attachment types are skipped.
func (p WebhookPayload) Submissions() []Submission {
	var subs []Submission
	for _, entry := range p.Entry {
		for _, ev := range entry.Messaging {
			msg := ev.Message
			if msg == nil || msg.IsEcho {
				continue
			}
			for _, att := range msg.Attachments {
				if att.Type != attachmentTypeReel || att.Payload.URL == "" {
					continue
				}
				key := msg.MID
				if key == "" {
					key = att.Payload.ReelVideoID
				}
				if key == "" {
					continue
				}
				subs = append(subs, Submission{
					Variant: VariantDirectMessage,
					Payload: map[string]any{
						FieldIdempotencyKey: key,
						FieldVideoURL:       att.Payload.URL,
						FieldVideoID:        att.Payload.ReelVideoID,
						FieldVideoText:      att.Payload.Title,
						FieldUserID:         ev.Sender.ID,
					},
				})
			}
		}
		for _, ch := range entry.Changes {
			if ch.Value.Permalink == "" {
				continue
			}
			key := ch.Value.MediaID
			if key == "" {
				key = ch.Value.Permalink
			}
			subs = append(subs, Submission{
				Variant: VariantWebhook,
				Payload: map[string]any{
					FieldIdempotencyKey: key,
					FieldVideoURL:       ch.Value.Permalink,
					FieldVideoID:        ch.Value.MediaID,
				},
			})
		}
	}
	return subs
}
