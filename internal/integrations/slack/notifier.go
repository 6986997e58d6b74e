// Package slackalert posts verification alerts to a Slack channel.
package slackalert

import (
	"context"
	"fmt"
	"strings"

	"docverify/internal/domain"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

type Notifier struct {
	api       *slack.Client
	channelID string
	logger    *zap.Logger
}

// New returns nil when token or channel is empty so callers can pass the
// result straight through as an optional notifier.
func New(token, channelID string, logger *zap.Logger, opts ...slack.Option) *Notifier {
	if token == "" || channelID == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{api: slack.New(token, opts...), channelID: channelID, logger: logger}
}

func (n *Notifier) NotifyMismatch(ctx context.Context, workerID string, result domain.VerificationResult) error {
	text := mismatchText(workerID, result)
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Document verification mismatch", false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, mismatchMarkdown(workerID, result), false, false), nil, nil),
	}
	_, _, err := n.api.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("post mismatch alert: %w", err)
	}
	n.logger.Info("mismatch alert posted", zap.String("worker_id", workerID), zap.String("channel", n.channelID))
	return nil
}

func mismatchText(workerID string, result domain.VerificationResult) string {
	return fmt.Sprintf("Verification mismatch for worker %s: %s", workerID, result.ErrorText())
}

func mismatchMarkdown(workerID string, result domain.VerificationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Worker:* `%s`\n", workerID)
	fields := make([]string, 0, len(result.MismatchedFields))
	for _, f := range result.MismatchedFields {
		fields = append(fields, string(f))
	}
	fmt.Fprintf(&b, "*Fields:* %s\n", strings.Join(fields, ", "))
	for _, e := range result.Errors {
		fmt.Fprintf(&b, "• %s\n", e)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
