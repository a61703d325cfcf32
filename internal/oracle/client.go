package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appctx "github.com/lucasnoah/fixfactory/internal/context"
)

// ChatClient is the slice of the OpenAI client the oracle uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config configures the OpenAI-compatible client.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float32
	RequestsPerMinute int // 0 means unlimited
	Timeout           time.Duration
	TemplatesDir      string
}

// Client implements Analyzer and Fixer over a chat completion endpoint using
// forced tool calls.
type Client struct {
	chat        ChatClient
	model       string
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
	prompts     *appctx.Builder
	log         *zap.Logger
}

var (
	_ Analyzer = (*Client)(nil)
	_ Fixer    = (*Client)(nil)
)

// New creates a Client talking to cfg.BaseURL (the OpenAI API when empty).
func New(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle: API key not set")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return NewWithChat(openai.NewClientWithConfig(oc), cfg, log), nil
}

// NewWithChat creates a Client over an existing ChatClient.
func NewWithChat(chat ChatClient, cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return &Client{
		chat:        chat,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		limiter:     limiter,
		prompts:     appctx.NewBuilder(cfg.TemplatesDir),
		log:         log.With(zap.String("model", cfg.Model)),
	}
}

// Analyze asks the model how to install and test the repository.
func (c *Client) Analyze(ctx context.Context, tree string) (*Analysis, error) {
	prompt, err := c.prompts.AnalyzePrompt(appctx.AnalyzeOpts{Tree: tree, LanguageHint: appctx.LanguageHint(tree)})
	if err != nil {
		return nil, err
	}
	args, err := c.call(ctx, prompt, analyzeTool)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	a, err := decodeAnalysis(args)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	c.log.Info("analysis received",
		zap.String("language", a.Language),
		zap.String("test_cmd", a.TestCmd),
		zap.Int("test_score", a.TestScore))
	return a, nil
}

// ProposeFix asks the model for one full-file replacement.
func (c *Client) ProposeFix(ctx context.Context, req FixRequest) (*FixProposal, error) {
	prompt, err := c.prompts.FixPrompt(appctx.FixOpts{
		Tree:          req.Tree,
		ErrorLog:      req.ErrorLog,
		Language:      req.Language,
		Iteration:     req.Iteration,
		MaxIterations: req.MaxIterations,
		PreviousFiles: req.PreviousFiles,
	})
	if err != nil {
		return nil, err
	}
	args, err := c.call(ctx, prompt, fixTool)
	if err != nil {
		return nil, fmt.Errorf("propose fix: %w", err)
	}
	p, err := decodeFix(args)
	if err != nil {
		return nil, fmt.Errorf("propose fix: %w", err)
	}
	c.log.Info("fix proposed",
		zap.String("file", p.File),
		zap.String("bug_type", string(p.BugType)),
		zap.Int("line", p.Line))
	return p, nil
}

// call sends prompt with tool forced and returns the tool arguments. Models
// that ignore tool_choice and answer in plain text fall back to the message
// content.
func (c *Client) call(ctx context.Context, prompt string, tool openai.Tool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Tools: []openai.Tool{tool},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: tool.Function.Name},
		},
	}

	start := time.Now()
	resp, err := c.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat completion (status %d): %w", apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	c.log.Debug("chat completion",
		zap.String("tool", tool.Function.Name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	msg := resp.Choices[0].Message
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == tool.Function.Name {
			return tc.Function.Arguments, nil
		}
	}
	if msg.Content != "" {
		c.log.Warn("model answered without a tool call, parsing content", zap.String("tool", tool.Function.Name))
		return msg.Content, nil
	}
	return "", fmt.Errorf("%w: no %s tool call", ErrInvalidResponse, tool.Function.Name)
}
