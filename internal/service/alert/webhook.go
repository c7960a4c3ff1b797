package alert

import (
	"context"
	"fmt"

	"FlowSentry/internal/domain/models"
	"FlowSentry/internal/domain/repository"
	pkghttp "FlowSentry/pkg/http"
)

// WebhookSink POSTs alerts as JSON to a configured endpoint.
type WebhookSink struct {
	client *pkghttp.Client
	url    string
}

// NewWebhookSink creates the sink.
func NewWebhookSink(client *pkghttp.Client, url string) repository.AlertSink {
	return &WebhookSink{client: client, url: url}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, ev *models.ClusterEvent) error {
	err := s.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    s.url,
		Body:   ev,
	}, nil)
	if err != nil {
		return fmt.Errorf("webhook deliver: %w", err)
	}
	return nil
}

func (s *WebhookSink) Close() error { return nil }
