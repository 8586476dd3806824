// Command scripture-mcp exposes chapter text and narration as MCP tools over stdio.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/book-expert/logger"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/scripture-service/internal/app"
	"github.com/book-expert/scripture-service/internal/config"
	"github.com/book-expert/scripture-service/internal/narration"
	"github.com/book-expert/scripture-service/internal/retrieval"
	"github.com/book-expert/scripture-service/internal/scripture"
)

const (
	serverName       = "Scripture Service"
	serverVersion    = "1.0.0"
	languagesURI     = "scripture://languages"
	mimeJSON         = "application/json"
	logFileName      = "scripture-mcp.log"
	argReference     = "reference"
	argLanguage      = "language"
	defaultLanguage  = "es"
	referenceExample = "Chapter reference such as 'es/RVR1960/GEN.1' or 'RVR1960/GEN.1'"
)

type textService interface {
	GetChapterText(ctx context.Context, ref scripture.ChapterReference) (*scripture.StructuredChapter, error)
	ListVersions(ctx context.Context, language string) (*retrieval.VersionListing, error)
	ListLanguages(ctx context.Context) ([]retrieval.LanguageSummary, error)
}

type narrator interface {
	Narrate(ctx context.Context, ref scripture.ChapterReference) (*narration.Artifact, error)
}

type handlers struct {
	texts    textService
	narrator narrator
	log      *logger.Logger
}

func newServer(h *handlers) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
	)

	s.AddTool(
		mcp.NewTool("get_chapter_text",
			mcp.WithDescription("Fetch the structured text of a scripture chapter: title, headings, cross references and numbered verses."),
			mcp.WithString(argReference, mcp.Required(), mcp.Description(referenceExample)),
			mcp.WithString(argLanguage,
				mcp.Description("Language used when the reference omits it"),
				mcp.DefaultString(defaultLanguage),
			),
		),
		h.handleGetChapterText,
	)

	s.AddTool(
		mcp.NewTool("narrate_chapter",
			mcp.WithDescription("Produce (or reuse) the narration of a chapter and return its public audio URL."),
			mcp.WithString(argReference, mcp.Required(), mcp.Description(referenceExample)),
			mcp.WithString(argLanguage,
				mcp.Description("Language used when the reference omits it"),
				mcp.DefaultString(defaultLanguage),
			),
		),
		h.handleNarrateChapter,
	)

	s.AddTool(
		mcp.NewTool("list_versions",
			mcp.WithDescription("List the scripture versions available for a language."),
			mcp.WithString(argLanguage,
				mcp.Description("2 or 3 letter language code"),
				mcp.DefaultString(defaultLanguage),
			),
		),
		h.handleListVersions,
	)

	s.AddResource(
		mcp.NewResource(
			languagesURI,
			"Supported languages",
			mcp.WithResourceDescription("Languages with configured versions and whether narration is available"),
			mcp.WithMIMEType(mimeJSON),
		),
		h.handleLanguagesResource,
	)

	return s
}

func (h *handlers) reference(req mcp.CallToolRequest) (scripture.ChapterReference, error) {
	return scripture.ParseReference(
		req.GetString(argReference, ""),
		req.GetString(argLanguage, defaultLanguage),
	)
}

func (h *handlers) handleGetChapterText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := h.reference(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	chapter, err := h.texts.GetChapterText(ctx, ref)
	if err != nil {
		h.log.Error("get_chapter_text %s failed: %v", ref, err)

		return mcp.NewToolResultError(fmt.Sprintf("Error fetching %s: %v", ref, err)), nil
	}

	return jsonResult(chapter)
}

func (h *handlers) handleNarrateChapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := h.reference(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	artifact, err := h.narrator.Narrate(ctx, ref)
	if err != nil {
		h.log.Error("narrate_chapter %s failed: %v", ref, err)

		return mcp.NewToolResultError(fmt.Sprintf("Error narrating %s: %v", ref, err)), nil
	}

	return mcp.NewToolResultText(artifact.URL), nil
}

func (h *handlers) handleListVersions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	listing, err := h.texts.ListVersions(ctx, req.GetString(argLanguage, defaultLanguage))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing versions: %v", err)), nil
	}

	return jsonResult(listing)
}

func (h *handlers) handleLanguagesResource(
	ctx context.Context,
	req mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	languages, err := h.texts.ListLanguages(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing languages: %w", err)
	}

	data, err := json.MarshalIndent(languages, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("error encoding languages: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: mimeJSON,
			Text:     string(data),
		},
	}, nil
}

func jsonResult(value any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return mcp.NewToolResultText(string(data)), nil
}

func run() error {
	log, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defer func() { _ = log.Close() }()

	cfg, err := config.Load(log)
	if err != nil {
		return err
	}

	var natsConnection *nats.Conn

	if cfg.Cache.Backend == config.BackendNATS {
		natsConnection, err = nats.Connect(cfg.NATS.URL, nats.Name("scripture-mcp"))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}

		defer natsConnection.Close()
	}

	services, err := app.New(context.Background(), cfg, natsConnection, log)
	if err != nil {
		return err
	}

	defer func() { _ = services.Close() }()

	log.System("Starting %s MCP server over stdio.", serverName)

	err = server.ServeStdio(newServer(&handlers{texts: services.Texts, narrator: services.Narrator, log: log}))
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scripture-mcp exited with error: %v\n", err)
		os.Exit(1)
	}
}
