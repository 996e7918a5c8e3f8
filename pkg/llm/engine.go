package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/wetlandlabs/wetkb/internal/types"
	"github.com/wetlandlabs/wetkb/pkg/tools"
)

const defaultSystemTemplate = "You are a helpful assistant for a document knowledge base. " +
	"Use the available tools to retrieve relevant passages before answering. " +
	"When the user names a specific document, search within that document only. " +
	"Answer strictly from retrieved content and say so when nothing relevant was found."

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	APIKey         string
	Model          string
	Temperature    float64
	MaxTokens      int
	ContextWindow  int // prompt-side token budget for tool results
	MaxToolRounds  int
	SystemTemplate string
	DisableTools   bool
}

// ChatEngine generates answers with the Gemini API, letting the model
// call knowledge-base tools until it can answer.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	tools  types.ToolExecutor
}

// Answer is a final model response with the document names cited by the
// tool calls that produced it.
type Answer struct {
	Text    string
	Sources []string
	Rounds  int
}

// ToolEvent reports a tool invocation requested by the model.
type ToolEvent struct {
	Name      string
	Arguments string
}

// StreamEvent is one item on a ChatStream channel.
type StreamEvent struct {
	Type   string // "tool", "chunk", "answer" or "error"
	Tool   *ToolEvent
	Chunk  string
	Answer *Answer
	Err    error
}

// NewWithConfig creates a ChatEngine backed by the Gemini API.
func NewWithConfig(ctx context.Context, config ChatConfig, executor types.ToolExecutor) (*ChatEngine, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(config.APIKey),
		googleai.WithDefaultModel(config.Model))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	return NewWithModel(config, client, executor)
}

// NewWithModel creates a ChatEngine on an already constructed model.
func NewWithModel(config ChatConfig, model llms.Model, executor types.ToolExecutor) (*ChatEngine, error) {
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.ContextWindow == 0 {
		config.ContextWindow = 32768
	}
	if config.MaxToolRounds == 0 {
		config.MaxToolRounds = 4
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = defaultSystemTemplate
	}
	if config.DisableTools {
		executor = nil
	}

	return &ChatEngine{
		config: config,
		llm:    model,
		tools:  executor,
	}, nil
}

// Chat runs the full tool loop for one user query and returns the final
// answer. history carries earlier turns of the conversation; onTool, if
// not nil, is called for every tool invocation the model requests.
func (ce *ChatEngine) Chat(ctx context.Context, query string, history []llms.MessageContent, onTool func(ToolEvent)) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	msgs := ce.openingMessages(query, history)
	return ce.converse(ctx, msgs, onTool, nil)
}

// ChatStream runs the same loop but delivers tool activity, answer
// chunks and the final answer over a channel. The channel is closed
// when the conversation turn is finished.
func (ce *ChatEngine) ChatStream(ctx context.Context, query string, history []llms.MessageContent) (<-chan StreamEvent, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}

	events := make(chan StreamEvent)
	msgs := ce.openingMessages(query, history)

	go func() {
		defer close(events)

		onTool := func(ev ToolEvent) {
			events <- StreamEvent{Type: "tool", Tool: &ev}
		}
		onChunk := func(_ context.Context, chunk []byte) error {
			if len(chunk) > 0 {
				events <- StreamEvent{Type: "chunk", Chunk: string(chunk)}
			}
			return nil
		}

		answer, err := ce.converse(ctx, msgs, onTool, onChunk)
		if err != nil {
			events <- StreamEvent{Type: "error", Err: err}
			return
		}
		events <- StreamEvent{Type: "answer", Answer: answer}
	}()

	return events, nil
}

func (ce *ChatEngine) openingMessages(query string, history []llms.MessageContent) []llms.MessageContent {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, query))
	return msgs
}

// converse drives generate/execute rounds. The last round is always run
// without tools so the model is forced to produce text.
func (ce *ChatEngine) converse(ctx context.Context, msgs []llms.MessageContent, onTool func(ToolEvent), onChunk func(context.Context, []byte) error) (*Answer, error) {
	var sources []string
	seen := make(map[string]bool)

	for round := 0; round <= ce.config.MaxToolRounds; round++ {
		opts := []llms.CallOption{
			llms.WithTemperature(ce.config.Temperature),
			llms.WithMaxTokens(ce.config.MaxTokens),
		}
		useTools := ce.tools != nil && round < ce.config.MaxToolRounds
		if useTools {
			opts = append(opts, llms.WithTools(ce.tools.Schemas()))
		}
		// Only the final generation streams. Tool rounds may carry
		// interim text next to the tool calls; streaming those would
		// leak it to the client ahead of the real answer.
		if onChunk != nil && !useTools {
			opts = append(opts, llms.WithStreamingFunc(onChunk))
		}

		resp, err := ce.llm.GenerateContent(ctx, msgs, opts...)
		if err != nil {
			return nil, fmt.Errorf("chat error: %w", err)
		}
		if resp == nil || len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no response from model")
		}

		choice := resp.Choices[0]
		if !useTools || len(choice.ToolCalls) == 0 {
			// A tool-enabled round that ends the conversation was
			// generated without streaming; deliver its text as one
			// chunk so the stream always matches the answer.
			if onChunk != nil && useTools && choice.Content != "" {
				if err := onChunk(ctx, []byte(choice.Content)); err != nil {
					return nil, err
				}
			}
			return &Answer{
				Text:    choice.Content,
				Sources: sources,
				Rounds:  round,
			}, nil
		}

		// Echo the assistant turn that requested the calls, then
		// answer each call with its tool result.
		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, tc := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, tc)
		}
		msgs = append(msgs, assistant)

		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			if onTool != nil {
				onTool(ToolEvent{Name: tc.FunctionCall.Name, Arguments: tc.FunctionCall.Arguments})
			}

			result := ce.tools.Execute(ctx, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
			for _, src := range result.Sources() {
				if !seen[src] {
					seen[src] = true
					sources = append(sources, src)
				}
			}

			content := truncateToTokens(
				tools.FormatForPrompt(tc.FunctionCall.Name, result),
				ce.toolResultBudget())

			msgs = append(msgs, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       tc.FunctionCall.Name,
					Content:    content,
				}},
			})
		}
	}

	return nil, fmt.Errorf("tool loop did not terminate")
}

// toolResultBudget is the per-result token allowance: a quarter of the
// context window, leaving room for history and the answer.
func (ce *ChatEngine) toolResultBudget() int {
	return ce.config.ContextWindow / 4
}

// FormatSources renders a citation block for an answer.
func FormatSources(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	return fmt.Sprintf("\nSources:\n%s", strings.Join(sources, "\n"))
}

// WithExchange appends a completed question/answer pair to a history.
func WithExchange(history []llms.MessageContent, query, answer string) []llms.MessageContent {
	return append(history,
		llms.TextParts(llms.ChatMessageTypeHuman, query),
		llms.TextParts(llms.ChatMessageTypeAI, answer),
	)
}

// truncateToTokens clips s to approximately max tokens, using the rough
// four-characters-per-token rule, cutting at a rune boundary. The marker
// is appended only when something was actually cut.
func truncateToTokens(s string, max int) string {
	if max <= 0 {
		return s
	}
	limit := max * 4
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "\n[truncated]"
}
