package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/bus"
	"github.com/hstudio-dev/glasschat/internal/media"
	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository"
)

// ErrEmptySend is returned when a send carries neither text nor an image.
var ErrEmptySend = errors.New("message needs text or an image")

// ErrNotAuthor is returned when someone other than the original author tries
// to edit a message.
var ErrNotAuthor = errors.New("only the author may edit a message")

// Service is the compose-and-send pipeline plus message maintenance. It owns
// the ordering rule for image+caption sends and the typing force-off that
// accompanies every send.
type Service struct {
	msgs     repository.MessageStore
	convs    repository.ConversationStore
	uploader media.Uploader
	bus      bus.Bus
	logger   *zap.Logger
}

func NewService(
	msgs repository.MessageStore,
	convs repository.ConversationStore,
	uploader media.Uploader,
	b bus.Bus,
	logger *zap.Logger,
) *Service {
	return &Service{msgs: msgs, convs: convs, uploader: uploader, bus: b, logger: logger}
}

// SendInput is one compose submission. Image bytes are raw upload data;
// FastMode applies the bounded downscale before upload, otherwise the
// original bytes go up untouched.
type SendInput struct {
	Text      string
	Image     []byte
	FastMode  bool
	ReplyToID string
}

// Send turns compose state into one or two durable messages: image first,
// caption second, both carrying the same replyToId. An upload failure aborts
// the whole send before anything is appended, never a partial send.
func (s *Service) Send(ctx context.Context, convID string, sender models.Role, in SendInput) ([]models.Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Image) == 0 {
		return nil, ErrEmptySend
	}

	// The sender's typing flag drops with the send itself. Best-effort: a
	// stale typing flag must not fail the message.
	if err := s.convs.Merge(ctx, convID, map[string]any{
		string(sender) + "Typing": false,
	}); err != nil {
		s.logger.Warn("typing reset failed on send",
			zap.String("conv_id", convID), zap.Error(err))
	}

	var imageURL string
	if len(in.Image) > 0 {
		data := in.Image
		if in.FastMode {
			scaled, err := media.Downscale(data, media.MaxDimension)
			if err != nil {
				return nil, fmt.Errorf("downscale image: %w", err)
			}
			data = scaled
		}
		url, err := s.uploader.Upload(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		imageURL = url
	}

	sent := make([]models.Message, 0, 2)
	if imageURL != "" {
		msg, err := s.msgs.Append(ctx, &models.Message{
			ChatID:    convID,
			Text:      imageURL,
			IsImage:   true,
			Sender:    sender,
			Status:    models.StatusSent,
			ReplyToID: in.ReplyToID,
		})
		if err != nil {
			return nil, fmt.Errorf("append image message: %w", err)
		}
		sent = append(sent, *msg)
	}
	if text != "" {
		msg, err := s.msgs.Append(ctx, &models.Message{
			ChatID:    convID,
			Text:      text,
			IsImage:   false,
			Sender:    sender,
			Status:    models.StatusSent,
			ReplyToID: in.ReplyToID,
		})
		if err != nil {
			return nil, fmt.Errorf("append message: %w", err)
		}
		sent = append(sent, *msg)
	}

	s.notify(ctx, convID)
	return sent, nil
}

// Edit rewrites a message's text in place and marks it edited. Author-only;
// timestamp and delivery status are never touched.
func (s *Service) Edit(ctx context.Context, convID, msgID string, editor models.Role, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptySend
	}

	messages, err := s.msgs.List(ctx, convID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	var found *models.Message
	for i := range messages {
		if messages[i].ID.Hex() == msgID {
			found = &messages[i]
			break
		}
	}
	if found == nil {
		return repository.ErrNotFound
	}
	if found.Sender != editor {
		return ErrNotAuthor
	}

	if err := s.msgs.UpdateText(ctx, convID, msgID, text); err != nil {
		return err
	}
	s.notify(ctx, convID)
	return nil
}

// Delete removes one message permanently. Idempotent.
func (s *Service) Delete(ctx context.Context, convID, msgID string) error {
	if err := s.msgs.Delete(ctx, convID, msgID); err != nil {
		return err
	}
	s.notify(ctx, convID)
	return nil
}

// Clear removes every message in the conversation. Idempotent.
func (s *Service) Clear(ctx context.Context, convID string) error {
	if err := s.msgs.Clear(ctx, convID); err != nil {
		return err
	}
	s.notify(ctx, convID)
	return nil
}

// Transcript renders the tail of the conversation for the suggestion API:
// one line per message, image messages noted rather than inlined.
func (s *Service) Transcript(ctx context.Context, convID string, limit int) (string, error) {
	messages, err := s.msgs.List(ctx, convID)
	if err != nil {
		return "", fmt.Errorf("load messages: %w", err)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(string(msg.Sender))
		sb.WriteString(": ")
		if msg.IsImage {
			sb.WriteString("[image]")
		} else {
			sb.WriteString(msg.Text)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (s *Service) notify(ctx context.Context, convID string) {
	if err := s.bus.Publish(ctx, bus.ConvTopic(convID), bus.Event{
		Type:   bus.EventMessages,
		ConvID: convID,
	}); err != nil {
		s.logger.Warn("message notify failed",
			zap.String("conv_id", convID), zap.Error(err))
	}
}
