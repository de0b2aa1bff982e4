// Package llm defines the provider abstractions for embedding and text
// generation backends, plus a factory registry keyed by provider name.
// Concrete providers register themselves in their package init.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	// Embed generates one embedding per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates the embedding for one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider name.
	Name() string
}

// ChatProvider generates text from prompts or conversations.
type ChatProvider interface {
	// Chat runs a multi-turn conversation and returns the reply text.
	Chat(ctx context.Context, messages []Message) (string, error)

	// Generate produces text from a single prompt with an optional
	// system prompt. An empty systemPrompt is omitted from the request.
	Generate(ctx context.Context, prompt string, systemPrompt string) (string, error)

	// Name returns the provider name.
	Name() string
}

// Provider combines embedding and chat capabilities.
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// ProviderFactory builds a full provider from a configuration map.
type ProviderFactory func(config map[string]any) (Provider, error)

// EmbeddingProviderFactory builds an embedding-only provider.
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

// ChatProviderFactory builds a chat-only provider.
type ChatProviderFactory func(config map[string]any) (ChatProvider, error)

var (
	registryMu         sync.RWMutex
	providerFactories  = make(map[string]ProviderFactory)
	embeddingFactories = make(map[string]EmbeddingProviderFactory)
	chatFactories      = make(map[string]ChatProviderFactory)
)

// RegisterProvider registers a full provider factory under name.
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providerFactories[name] = factory
}

// RegisterEmbeddingProvider registers an embedding-only provider factory.
func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	embeddingFactories[name] = factory
}

// RegisterChatProvider registers a chat-only provider factory.
func RegisterChatProvider(name string, factory ChatProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	chatFactories[name] = factory
}

// NewProvider creates a full provider by name.
func NewProvider(name string, config map[string]any) (Provider, error) {
	registryMu.RLock()
	factory, ok := providerFactories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider %q, registered: %v", name, ListProviders())
	}
	return factory(config)
}

// NewEmbeddingProvider creates an embedding provider by name. A
// dedicated embedding factory takes precedence; otherwise the full
// provider registered under the same name is used.
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	registryMu.RLock()
	factory, ok := embeddingFactories[name]
	registryMu.RUnlock()

	if ok {
		return factory(config)
	}
	return NewProvider(name, config)
}

// NewChatProvider creates a chat provider by name. A dedicated chat
// factory takes precedence; otherwise the full provider registered
// under the same name is used.
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	registryMu.RLock()
	factory, ok := chatFactories[name]
	registryMu.RUnlock()

	if ok {
		return factory(config)
	}
	return NewProvider(name, config)
}

// ListProviders returns the sorted names of all registered providers.
func ListProviders() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]struct{}, len(providerFactories))
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for name := range embeddingFactories {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for name := range chatFactories {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
