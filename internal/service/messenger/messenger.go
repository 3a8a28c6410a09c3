// Package messenger delivers Instagram direct messages through the Graph
// API and implements the two DM stages: the processing ack and the final
// analysis result.
package messenger

import "context"

// MessageCharLimit is the Graph API limit for one message text.
const MessageCharLimit = 1000

// Sender delivers one text message to one recipient.
type Sender interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// NoopSender drops messages. It keeps DM pipelines runnable when no
// Instagram access token is configured.
type NoopSender struct{}

// SendText discards the message.
func (NoopSender) SendText(_ context.Context, _, _ string) error { return nil }

// ChunkMessage splits text into chunks of at most limit characters.
// Splitting is rune-based so multi-byte Portuguese text never breaks
// mid-character.
func ChunkMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// deliver sends every message, chunked to the platform limit, stopping at
// the first send error.
func deliver(ctx context.Context, s Sender, recipientID string, messages []string) error {
	for _, msg := range messages {
		for _, chunk := range ChunkMessage(msg, MessageCharLimit) {
			if err := s.SendText(ctx, recipientID, chunk); err != nil {
				return err
			}
		}
	}
	return nil
}
