package chat

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hstudio-dev/glasschat/internal/bus"
	"github.com/hstudio-dev/glasschat/internal/models"
	"github.com/hstudio-dev/glasschat/internal/repository"
	"github.com/hstudio-dev/glasschat/internal/repository/repotest"
)

type fakeUploader struct {
	url string
	err error
}

func (u *fakeUploader) Upload(context.Context, []byte) (string, error) {
	return u.url, u.err
}

func newService(t *testing.T, uploader *fakeUploader) (*Service, *repotest.MessageStore, *repotest.ConversationStore) {
	t.Helper()
	msgs := repotest.NewMessageStore()
	convs := repotest.NewConversationStore()
	require.NoError(t, convs.Ensure(context.Background(), "code-1"))
	svc := NewService(msgs, convs, uploader, bus.NewMemoryBus(), zap.NewNop())
	return svc, msgs, convs
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestSendRejectsEmptySubmission(t *testing.T) {
	svc, _, _ := newService(t, &fakeUploader{})

	_, err := svc.Send(context.Background(), "code-1", models.RoleUser, SendInput{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptySend)
}

func TestSendTrimsAndStoresText(t *testing.T) {
	svc, msgs, _ := newService(t, &fakeUploader{})

	sent, err := svc.Send(context.Background(), "code-1", models.RoleUser, SendInput{Text: "  hi there  "})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "hi there", sent[0].Text)
	assert.Equal(t, models.StatusSent, sent[0].Status)
	assert.NotNil(t, sent[0].Timestamp)

	stored, _ := msgs.List(context.Background(), "code-1")
	require.Len(t, stored, 1)
	assert.Equal(t, models.RoleUser, stored[0].Sender)
	assert.False(t, stored[0].IsImage)
}

func TestSendDropsSenderTypingFlag(t *testing.T) {
	svc, _, convs := newService(t, &fakeUploader{})
	ctx := context.Background()
	require.NoError(t, convs.Merge(ctx, "code-1", map[string]any{"userTyping": true}))

	_, err := svc.Send(ctx, "code-1", models.RoleUser, SendInput{Text: "done typing"})
	require.NoError(t, err)

	conv, err := convs.Get(ctx, "code-1")
	require.NoError(t, err)
	assert.False(t, conv.UserTyping)
}

func TestImageWithCaptionProducesTwoOrderedMessages(t *testing.T) {
	svc, msgs, _ := newService(t, &fakeUploader{url: "https://img.example/x.jpg"})

	sent, err := svc.Send(context.Background(), "code-1", models.RoleAdmin, SendInput{
		Text:      "look at this",
		Image:     pngBytes(t),
		ReplyToID: "abc123",
	})
	require.NoError(t, err)
	require.Len(t, sent, 2)

	assert.True(t, sent[0].IsImage)
	assert.Equal(t, "https://img.example/x.jpg", sent[0].Text)
	assert.False(t, sent[1].IsImage)
	assert.Equal(t, "look at this", sent[1].Text)

	// Both halves reply to the same message.
	assert.Equal(t, "abc123", sent[0].ReplyToID)
	assert.Equal(t, "abc123", sent[1].ReplyToID)

	stored, _ := msgs.List(context.Background(), "code-1")
	require.Len(t, stored, 2)
	assert.True(t, stored[0].IsImage)
}

func TestUploadFailureAbortsWholeSend(t *testing.T) {
	svc, msgs, _ := newService(t, &fakeUploader{err: assert.AnError})

	_, err := svc.Send(context.Background(), "code-1", models.RoleUser, SendInput{
		Text:  "caption",
		Image: pngBytes(t),
	})
	require.Error(t, err)

	// Not even the caption half may land.
	stored, _ := msgs.List(context.Background(), "code-1")
	assert.Empty(t, stored)
}

func TestEditIsAuthorOnly(t *testing.T) {
	svc, msgs, _ := newService(t, &fakeUploader{})
	ctx := context.Background()

	sent, err := svc.Send(ctx, "code-1", models.RoleUser, SendInput{Text: "original"})
	require.NoError(t, err)
	msgID := sent[0].ID.Hex()

	assert.ErrorIs(t, svc.Edit(ctx, "code-1", msgID, models.RoleAdmin, "hijacked"), ErrNotAuthor)

	require.NoError(t, svc.Edit(ctx, "code-1", msgID, models.RoleUser, "fixed"))
	stored, _ := msgs.List(ctx, "code-1")
	assert.Equal(t, "fixed", stored[0].Text)
	assert.True(t, stored[0].IsEdited)
}

func TestEditMissingMessage(t *testing.T) {
	svc, _, _ := newService(t, &fakeUploader{})
	err := svc.Edit(context.Background(), "code-1", "000000000000000000000000", models.RoleUser, "text")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestClearRemovesEverything(t *testing.T) {
	svc, msgs, _ := newService(t, &fakeUploader{})
	ctx := context.Background()

	_, err := svc.Send(ctx, "code-1", models.RoleUser, SendInput{Text: "one"})
	require.NoError(t, err)
	_, err = svc.Send(ctx, "code-1", models.RoleAdmin, SendInput{Text: "two"})
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, "code-1"))
	stored, _ := msgs.List(ctx, "code-1")
	assert.Empty(t, stored)
}

func TestTranscriptTailWithImagePlaceholders(t *testing.T) {
	svc, _, _ := newService(t, &fakeUploader{url: "https://img.example/y.jpg"})
	ctx := context.Background()

	_, err := svc.Send(ctx, "code-1", models.RoleUser, SendInput{Text: "hello"})
	require.NoError(t, err)
	_, err = svc.Send(ctx, "code-1", models.RoleAdmin, SendInput{Image: pngBytes(t)})
	require.NoError(t, err)

	transcript, err := svc.Transcript(ctx, "code-1", 10)
	require.NoError(t, err)
	assert.Equal(t, "user: hello\nadmin: [image]\n", transcript)

	// A limit of 1 keeps only the newest line.
	transcript, err = svc.Transcript(ctx, "code-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "admin: [image]\n", transcript)
}
