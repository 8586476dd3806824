// Command scripture-cli fetches chapter text and narrations from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/scripture-service/internal/app"
	"github.com/book-expert/scripture-service/internal/config"
	"github.com/book-expert/scripture-service/internal/narration"
	"github.com/book-expert/scripture-service/internal/retrieval"
	"github.com/book-expert/scripture-service/internal/scripture"
	"github.com/book-expert/scripture-service/internal/upstream"
)

const logFileName = "scripture-cli.log"

// textService is the subset of the retrieval service the commands use.
type textService interface {
	GetChapterText(ctx context.Context, ref scripture.ChapterReference) (*scripture.StructuredChapter, error)
	ListVersions(ctx context.Context, language string) (*retrieval.VersionListing, error)
	GetVersion(ctx context.Context, abbreviation string) (*upstream.VersionInfo, error)
	ListLanguages(ctx context.Context) ([]retrieval.LanguageSummary, error)
}

type narrator interface {
	Narrate(ctx context.Context, ref scripture.ChapterReference) (*narration.Artifact, error)
}

// environment is bound into every command's Run.
type environment struct {
	ctx      context.Context //nolint:containedctx // kong binds one context per invocation
	texts    textService
	narrator narrator
	out      io.Writer
	language string
	json     bool
}

type cli struct {
	Language string `short:"l" default:"es" help:"Language used when a reference omits it."`
	Cache    string `help:"Override the configured cache backend (nats, s3, sqlite or memory)."`
	JSON     bool   `name:"json" help:"Print results as JSON."`

	Text      TextCmd      `cmd:"" help:"Print the structured text of a chapter."`
	Audio     AudioCmd     `cmd:"" help:"Narrate a chapter and print the audio URL."`
	Versions  VersionsCmd  `cmd:"" help:"List the versions available for a language."`
	Version   VersionCmd   `cmd:"" help:"Show upstream metadata for one version."`
	Languages LanguagesCmd `cmd:"" help:"List the configured languages."`
}

// TextCmd prints a chapter.
type TextCmd struct {
	Reference string `arg:"" help:"Chapter reference, e.g. es/RVR1960/GEN.1 or RVR1960/GEN.1."`
}

// Run executes the text command.
func (c *TextCmd) Run(env *environment) error {
	ref, err := scripture.ParseReference(c.Reference, env.language)
	if err != nil {
		return err
	}

	chapter, err := env.texts.GetChapterText(env.ctx, ref)
	if err != nil {
		return err
	}

	if env.json {
		return writeJSON(env.out, chapter)
	}

	renderChapter(env.out, chapter)

	return nil
}

// AudioCmd narrates a chapter.
type AudioCmd struct {
	Reference string `arg:"" help:"Chapter reference, e.g. es/RVR1960/GEN.1 or RVR1960/GEN.1."`
}

// Run executes the audio command.
func (c *AudioCmd) Run(env *environment) error {
	ref, err := scripture.ParseReference(c.Reference, env.language)
	if err != nil {
		return err
	}

	artifact, err := env.narrator.Narrate(env.ctx, ref)
	if err != nil {
		return err
	}

	if env.json {
		return writeJSON(env.out, artifact)
	}

	_, err = fmt.Fprintln(env.out, artifact.URL)

	return err
}

// VersionsCmd lists versions.
type VersionsCmd struct {
	Code string `arg:"" optional:"" help:"2 or 3 letter language code; defaults to --language."`
}

// Run executes the versions command.
func (c *VersionsCmd) Run(env *environment) error {
	language := c.Code
	if language == "" {
		language = env.language
	}

	listing, err := env.texts.ListVersions(env.ctx, language)
	if err != nil {
		return err
	}

	if env.json {
		return writeJSON(env.out, listing)
	}

	for _, version := range listing.Versions {
		_, err = fmt.Fprintf(env.out, "%-10s %6d  %s\n", version.Abbreviation, version.BibleID, version.Title)
		if err != nil {
			return err
		}
	}

	return nil
}

// VersionCmd shows one version.
type VersionCmd struct {
	Abbreviation string `arg:"" help:"Version abbreviation, e.g. RVR1960."`
}

// Run executes the version command.
func (c *VersionCmd) Run(env *environment) error {
	info, err := env.texts.GetVersion(env.ctx, c.Abbreviation)
	if err != nil {
		return err
	}

	if env.json {
		return writeJSON(env.out, info)
	}

	_, err = fmt.Fprintf(env.out, "%s (%d) %s [%s, %s]\n",
		info.Abbreviation, info.ID, info.Title, info.Language, info.TextDirection)
	if err != nil {
		return err
	}

	for _, book := range info.Books {
		_, err = fmt.Fprintf(env.out, "  %-4s %-24s %d\n", book.USFM, book.Name, book.Chapters)
		if err != nil {
			return err
		}
	}

	return nil
}

// LanguagesCmd lists languages.
type LanguagesCmd struct{}

// Run executes the languages command.
func (c *LanguagesCmd) Run(env *environment) error {
	languages, err := env.texts.ListLanguages(env.ctx)
	if err != nil {
		return err
	}

	if env.json {
		return writeJSON(env.out, languages)
	}

	for _, language := range languages {
		narrated := ""
		if language.Narrated {
			narrated = " (narrated)"
		}

		_, err = fmt.Fprintf(env.out, "%s %s %s%s\n", language.Code, language.ISO6393, language.Name, narrated)
		if err != nil {
			return err
		}
	}

	return nil
}

func renderChapter(w io.Writer, chapter *scripture.StructuredChapter) {
	var builder strings.Builder

	builder.WriteString(chapter.Title)
	builder.WriteString("\n")

	for _, entry := range chapter.Content {
		switch entry.Type {
		case scripture.EntryHeading:
			builder.WriteString("\n" + entry.Text + "\n")
		case scripture.EntryReference:
			builder.WriteString(entry.Text + "\n")
		case scripture.EntryVerse:
			if entry.Number != nil {
				fmt.Fprintf(&builder, "%d ", *entry.Number)
			}

			builder.WriteString(entry.Text + "\n")
		}
	}

	_, _ = io.WriteString(w, builder.String())
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	return nil
}

func run(ctx context.Context, parsed *kong.Context, flags *cli) error {
	log, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defer func() { _ = log.Close() }()

	cfg, err := config.Load(log)
	if err != nil {
		return err
	}

	if flags.Cache != "" {
		cfg.Cache.Backend = flags.Cache
	}

	var natsConnection *nats.Conn

	if cfg.Cache.Backend == config.BackendNATS {
		natsConnection, err = nats.Connect(cfg.NATS.URL, nats.Name("scripture-cli"))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}

		defer natsConnection.Close()
	}

	services, err := app.New(ctx, cfg, natsConnection, log)
	if err != nil {
		return err
	}

	defer func() { _ = services.Close() }()

	return parsed.Run(&environment{
		ctx:      ctx,
		texts:    services.Texts,
		narrator: services.Narrator,
		out:      os.Stdout,
		language: flags.Language,
		json:     flags.JSON,
	})
}

func main() {
	var flags cli

	parsed := kong.Parse(&flags,
		kong.Name("scripture-cli"),
		kong.Description("Fetch scripture chapter text and narrations."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, parsed, &flags)

	stop()
	parsed.FatalIfErrorf(err)
}
