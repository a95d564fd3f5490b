package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/parleychat/parley/internal/models"
	cfgPkg "github.com/parleychat/parley/pkg/config"
	"github.com/parleychat/parley/pkg/extract"
	"github.com/parleychat/parley/pkg/highlight"
	"github.com/parleychat/parley/pkg/llm"
	"github.com/schollz/progressbar/v3"
)

type Config struct {
	Provider     string
	Model        string
	BaseURL      string
	APIKey       string
	SystemPrompt string
	Theme        string
	Attachments  []string
	MaxTokens    int
	Temperature  float64
	WordWrap     int
	Streaming    bool
}

// fileList lets -attach be given more than once.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(value string) error {
	*f = append(*f, value)
	return nil
}

func main() {
	config := parseFlags()

	if err := run(config); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Config {
	var config Config
	var configPath string
	var attachments fileList

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&config.Provider, "provider", "", "LLM provider (anthropic, openai or ollama)")
	flag.StringVar(&config.Model, "model", "", "Model to chat with")
	flag.StringVar(&config.BaseURL, "base-url", os.Getenv("OLLAMA_BASE_URL"), "Provider base URL")
	flag.StringVar(&config.SystemPrompt, "system", "", "System prompt for the conversation")
	flag.IntVar(&config.MaxTokens, "max-tokens", 0, "Maximum tokens per response")
	flag.Float64Var(&config.Temperature, "temperature", 0, "Set the LLM temperature")
	flag.BoolVar(&config.Streaming, "stream", true, "Stream the response as it is generated")
	flag.Var(&attachments, "attach", "Attach a file to the first message (repeatable)")
	flag.Parse()

	config.Attachments = attachments

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags given on the command line win over the config file.
	if !set["provider"] {
		config.Provider = cfg.LLM.Provider
	}
	if !set["model"] {
		config.Model = cfg.LLM.Model
	}
	if !set["base-url"] && config.BaseURL == "" {
		config.BaseURL = cfg.LLM.BaseURL
	}
	if !set["system"] {
		config.SystemPrompt = cfg.LLM.SystemPrompt
	}
	if !set["max-tokens"] {
		config.MaxTokens = cfg.LLM.MaxTokens
	}
	if !set["temperature"] {
		config.Temperature = cfg.LLM.Temperature
	}
	if !set["stream"] {
		config.Streaming = cfg.UI.Streaming
	}
	config.APIKey = cfg.LLM.APIKey
	config.Theme = cfg.UI.Theme
	config.WordWrap = cfg.UI.WordWrap

	return config
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// loadAttachment reads a local file into the data URL form the
// extractor understands.
func loadAttachment(path string) (models.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Attachment{}, err
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "text/plain"
	}

	return models.Attachment{
		Name:        filepath.Base(path),
		ContentType: contentType,
		URL:         "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Size:        int64(len(data)),
	}, nil
}

func newRenderer(config Config) *glamour.TermRenderer {
	style := glamour.WithAutoStyle()
	if config.Theme != "" && config.Theme != "auto" {
		style = glamour.WithStandardStyle(config.Theme)
	}

	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(config.WordWrap))
	if err != nil {
		return nil
	}
	return renderer
}

// labelFences tags unlabeled code fences with a detected language so
// the terminal renderer can highlight them.
func labelFences(markdown string) string {
	lines := strings.Split(markdown, "\n")
	inFence := false
	openIdx := -1

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		if !inFence {
			inFence = true
			openIdx = -1
			if trimmed == "```" {
				openIdx = i
			}
			continue
		}
		inFence = false
		if openIdx >= 0 {
			body := strings.Join(lines[openIdx+1:i], "\n")
			if lang := highlight.Detect(body); lang != highlight.PlainText {
				lines[openIdx] = strings.Replace(lines[openIdx], "```", "```"+lang, 1)
			}
		}
	}

	return strings.Join(lines, "\n")
}

// renderReply renders an assistant reply for the terminal, falling
// back to the raw text when no renderer is available.
func renderReply(renderer *glamour.TermRenderer, reply string) string {
	if renderer == nil {
		return reply
	}

	rendered, err := renderer.Render(labelFences(reply))
	if err != nil {
		return reply
	}
	return rendered
}

func run(config Config) error {
	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:     config.Provider,
		Model:        config.Model,
		BaseURL:      config.BaseURL,
		APIKey:       config.APIKey,
		SystemPrompt: config.SystemPrompt,
		Temperature:  config.Temperature,
		MaxTokens:    config.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %v", err)
	}

	renderer := newRenderer(config)

	// Attachments ride along with the first message the user sends.
	extractor := extract.New()
	var attachmentText string
	if len(config.Attachments) > 0 {
		var atts []models.Attachment
		for _, path := range config.Attachments {
			att, err := loadAttachment(path)
			if err != nil {
				color.Red("Failed to read attachment %s: %v\n", path, err)
				continue
			}
			atts = append(atts, att)
		}

		attachmentText = extractor.Extract(atts)
		if attachmentText != "" {
			color.Green("✓ Attached %d file(s)\n", len(atts))
		}
	}

	// Interactive chat loop with colored output
	color.Cyan("\nChatting with %s via %s (type 'exit' to quit)", config.Model, config.Provider)

	var messages []models.Message
	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		if attachmentText != "" {
			query = query + "\n\n" + attachmentText
			attachmentText = ""
		}

		messages = append(messages, models.Message{Role: models.RoleUser, Content: query})

		if config.Streaming {
			stream, err := chatEngine.ChatStream(context.Background(), messages)
			if err != nil {
				color.Red("Error: %v\n", err)
				messages = messages[:len(messages)-1]
				continue
			}

			fmt.Print("\n")
			assistantPrompt("Assistant: ")

			responseSpinner := getSpinner(" Thinking...")
			firstChunk := true
			var reply strings.Builder
			var streamErr error

			for chunk := range stream {
				if chunk.Err != nil {
					streamErr = chunk.Err
					continue
				}
				if chunk.Done || chunk.Delta == "" {
					continue
				}

				// Clear spinner on first chunk
				if firstChunk {
					responseSpinner.Finish()
					firstChunk = false
					fmt.Print("\n\n")
				}

				reply.WriteString(chunk.Delta)
				fmt.Print(chunk.Delta)
			}

			// Ensure spinner is finished in case of early exit
			if firstChunk {
				responseSpinner.Finish()
			}

			if streamErr != nil {
				color.Red("\nError: %v\n", streamErr)
				messages = messages[:len(messages)-1]
				continue
			}

			fmt.Print("\n")
			messages = append(messages, models.Message{Role: models.RoleAssistant, Content: reply.String()})
		} else {
			responseSpinner := getSpinner(" Generating response...")
			response, err := chatEngine.Chat(context.Background(), messages)
			responseSpinner.Finish()

			if err != nil {
				color.Red("Error: %v\n", err)
				messages = messages[:len(messages)-1]
				continue
			}

			assistantPrompt("\nAssistant:\n")
			fmt.Print(renderReply(renderer, response))
			messages = append(messages, models.Message{Role: models.RoleAssistant, Content: response})
		}
	}

	return nil
}
