// Package openai backs insight generation with the OpenAI chat API.
package openai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/avelio/prospect/insight"
)

type generator struct {
	options insight.Options
	client  *openai.Client
}

// NewGenerator builds an OpenAI-backed insight.Generator.
func NewGenerator(opts ...insight.Option) insight.Generator {
	options := insight.NewOptions(opts...)
	if options.Model == "" {
		options.Model = openai.GPT4oMini
	}
	return &generator{
		options: options,
		client:  openai.NewClient(options.APIKey),
	}
}

func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	fullPrompt := prompt
	if g.options.PromptPrefix != "" {
		fullPrompt = g.options.PromptPrefix + "\n" + prompt
	}

	rsp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.options.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fullPrompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(rsp.Choices) == 0 || rsp.Choices[0].Message.Content == "" {
		return "", errors.New("no response from OpenAI")
	}
	return rsp.Choices[0].Message.Content, nil
}
