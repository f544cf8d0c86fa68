// Package anthropic backs insight generation with the Anthropic
// messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/avelio/prospect/insight"
)

type generator struct {
	options insight.Options
	client  *anthropic.Client
}

// NewGenerator builds an Anthropic-backed insight.Generator.
func NewGenerator(opts ...insight.Option) insight.Generator {
	options := insight.NewOptions(opts...)
	if options.Model == "" {
		options.Model = string(anthropic.ModelClaudeSonnet4_0)
	}
	client := anthropic.NewClient(
		anthropicopt.WithAPIKey(options.APIKey),
	)
	return &generator{
		options: options,
		client:  &client,
	}
}

func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	fullPrompt := prompt
	if g.options.PromptPrefix != "" {
		fullPrompt = g.options.PromptPrefix + "\n" + prompt
	}

	rsp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.options.Model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fullPrompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no response from Anthropic")
	}
	return b.String(), nil
}
