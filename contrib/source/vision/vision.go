// Package vision describes images with a vision-capable chat model and feeds
// the description into the evidence pool.
package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/llm"
	"github.com/sweetpotato0/queryweave/source"
)

const defaultPrompt = "Describe this image in detail. If it is a logo or emblem, identify the organization."

// Credibility is the prior for model-generated image descriptions.
const Credibility = 0.7

// Adapter implements the vision evidence source.
type Adapter struct {
	client llm.Client
	prompt string
	now    func() time.Time
}

// Option customises the adapter.
type Option func(*Adapter)

// WithPrompt overrides the default description prompt used when the
// sub-query carries no question of its own.
func WithPrompt(prompt string) Option {
	return func(a *Adapter) {
		if prompt != "" {
			a.prompt = prompt
		}
	}
}

// New wraps a vision-capable client as the vision source.
func New(client llm.Client, opts ...Option) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("vision: client is required")
	}
	a := &Adapter{client: client, prompt: defaultPrompt, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Kind() evidence.SourceKind { return evidence.SourceVision }

// Call describes the image named by the "image_url" parameter. The sub-query
// text, when present, becomes the question asked about the image.
func (a *Adapter) Call(ctx context.Context, req source.Request) ([]evidence.Item, error) {
	imageURL := source.Param(req.Params, "image_url")
	if imageURL == "" {
		return nil, source.NewError(evidence.SourceVision, source.ErrNotFound,
			fmt.Errorf("no image_url in request"))
	}

	prompt := strings.TrimSpace(req.Query)
	if prompt == "" {
		prompt = a.prompt
	}

	msg := llm.NewMessage(llm.RoleUser, prompt)
	msg.ImageURLs = []string{imageURL}

	reply, err := a.client.Complete(ctx, []*llm.Message{msg})
	if err != nil {
		return nil, source.TransportError(evidence.SourceVision, err)
	}
	description := strings.TrimSpace(reply.Content)
	if description == "" {
		return nil, source.NewError(evidence.SourceVision, source.ErrUpstream,
			fmt.Errorf("model returned empty description"))
	}

	now := a.now().UTC()
	return []evidence.Item{{
		Source:           evidence.SourceVision,
		Content:          description,
		Locator:          imageURL,
		Timestamp:        &now,
		CredibilityPrior: Credibility,
	}}, nil
}
