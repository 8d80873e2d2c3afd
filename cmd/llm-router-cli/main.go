// Package main provides the llm-router-cli command-line tool for operating
// the router: config and catalog validation, endpoint inspection and a
// smoke-test chat client.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	llmrouter "github.com/radlab/llm-router"
	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/endpoint"
	"github.com/radlab/llm-router/hook"
	"github.com/radlab/llm-router/internal/version"

	// Register built-in maskers and guardrails so they appear in the
	// hooks list.
	_ "github.com/radlab/llm-router/internal/hooks/lengthguard"
	_ "github.com/radlab/llm-router/internal/hooks/regexmask"
	_ "github.com/radlab/llm-router/internal/hooks/wordguard"
)

const usage = `llm-router-cli — LLM router command line tool

Usage:
  llm-router-cli <command> [arguments]

Commands:
  validate <models-config>         Validate a model catalog file
  config <config-file>             Validate a router configuration file (JSON/YAML)
  endpoints                        List the built-in endpoints
  hooks                            List all registered maskers and guardrails
  chat <base-url> <model> <text>   Send one chat completion through a running router
  version                          Print version info
  help                             Show this help
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "validate":
		cmdValidate()
	case "config":
		cmdConfig()
	case "endpoints":
		cmdEndpoints()
	case "hooks":
		cmdHooks()
	case "chat":
		cmdChat()
	case "version":
		cmdVersion()
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		fmt.Print(usage)
		os.Exit(1)
	}
}

func cmdValidate() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: llm-router-cli validate <models-config>")
		os.Exit(1)
	}
	cat, err := catalog.Load(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading catalog: %v\n", err)
		os.Exit(1)
	}

	models := cat.ActiveModels()
	fmt.Printf("✓ Catalog is valid\n")
	fmt.Printf("  Active models: %d\n", len(models))
	for _, model := range models {
		providers := cat.Providers(model)
		ids := make([]string, 0, len(providers))
		for _, p := range providers {
			ids = append(ids, fmt.Sprintf("%s (%s @ %s)", p.ID, p.APIType, p.Host()))
		}
		fmt.Printf("  %-24s %s\n", model, strings.Join(ids, ", "))
	}
}

func cmdConfig() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: llm-router-cli config <config-file>")
		os.Exit(1)
	}
	cfg, err := llmrouter.LoadConfig(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := llmrouter.ValidateConfig(*cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Config is valid\n")
	fmt.Printf("  Strategy: %s\n", cfg.BalanceStrategy)
	fmt.Printf("  Catalog:  %s\n", cfg.ModelsConfig)
	if cfg.Redis.Host != "" {
		fmt.Printf("  Store:    %s:%d/%d\n", cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.DB)
	}
	if len(cfg.Hooks) > 0 {
		var names []string
		for _, h := range cfg.Hooks {
			status := "disabled"
			if h.Enabled {
				status = "enabled"
			}
			names = append(names, fmt.Sprintf("%s/%s (%s)", h.Stage, h.Name, status))
		}
		fmt.Printf("  Hooks:    %s\n", strings.Join(names, ", "))
	}
}

func cmdEndpoints() {
	fmt.Println("Built-in endpoints:")
	for _, h := range endpoint.Builtin(nil, version.Short()) {
		desc := h.Descriptor()
		path := desc.Path
		if !desc.DontAddAPIPrefix {
			path = "/api" + path
		}
		fmt.Printf("  %-6s %-36s %s\n", desc.Method, path, desc.Name)
	}
}

func cmdHooks() {
	maskers := hook.RegisteredMaskers()
	guardrails := hook.RegisteredGuardrails()
	if len(maskers) == 0 && len(guardrails) == 0 {
		fmt.Println("No hooks registered.")
		return
	}
	if len(maskers) > 0 {
		fmt.Println("Registered maskers:")
		for _, name := range maskers {
			fmt.Printf("  %s\n", name)
		}
	}
	if len(guardrails) > 0 {
		fmt.Println("Registered guardrails:")
		for _, name := range guardrails {
			fmt.Printf("  %s\n", name)
		}
	}
}

func cmdChat() {
	if len(os.Args) < 5 {
		fmt.Fprintln(os.Stderr, "Usage: llm-router-cli chat <base-url> <model> <text>")
		os.Exit(1)
	}
	baseURL, model, text := os.Args[2], os.Args[3], strings.Join(os.Args[4:], " ")

	client := openai.NewClient(option.WithBaseURL(strings.TrimSuffix(baseURL, "/") + "/v1"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(text)},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat request failed: %v\n", err)
		os.Exit(1)
	}
	for _, choice := range completion.Choices {
		fmt.Println(choice.Message.Content)
	}
}

func cmdVersion() {
	fmt.Printf("llm-router-cli %s\n", version.String())
}
