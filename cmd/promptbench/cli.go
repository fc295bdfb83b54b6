package main

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/promptbench/internal/assist"
	"github.com/hpungsan/promptbench/internal/backend"
	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/logger"
	"github.com/hpungsan/promptbench/internal/ops"
	"github.com/hpungsan/promptbench/internal/prompt"
	"github.com/hpungsan/promptbench/internal/workspace"
)

// maxStdinBytes bounds draft and script input read from stdin.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, workspaces workspace.Store, assistant *assist.Client, log *logger.Logger) *cli.App {
	app := &cli.App{
		Name:    "promptbench",
		Usage:   "Keyword workbench for prompt drafts",
		Version: Version,
		Commands: []*cli.Command{
			saveCmd(db, cfg),
			fetchCmd(db),
			listCmd(db),
			deleteCmd(db),
			purgeCmd(db),
			workspaceCmd(workspaces),
			previewCmd(db, assistant),
			replayCmd(db, cfg, workspaces, assistant, log),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// draftFile is the JSON accepted by the save command.
type draftFile struct {
	Topic        string           `json:"topic"`
	Body         string           `json:"body"`
	Instructions string           `json:"instructions"`
	Model        string           `json:"model"`
	Tags         []string         `json:"tags"`
	Positive     []keyword.Record `json:"positive"`
	Negative     []keyword.Record `json:"negative"`
}

// saveCmd creates the save command.
func saveCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Create or update a draft (reads draft JSON from stdin)",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags (replaces tags from stdin)"},
			&cli.BoolFlag{Name: "publish", Aliases: []string{"p"}, Usage: "Validate and publish the draft"},
		},
		Action: func(c *cli.Context) error {
			// Require stdin input
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("draft JSON must be piped via stdin"))
			}

			text, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			if text == "" {
				return outputError(errors.NewInvalidRequest("draft JSON is required"))
			}

			var d draftFile
			if err := json.Unmarshal([]byte(text), &d); err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid draft JSON: %v", err)))
			}
			if c.IsSet("tags") {
				d.Tags = parseTags(c.String("tags"))
			}

			input := ops.SaveDraftInput{
				ID:           c.Args().First(),
				Topic:        d.Topic,
				Body:         d.Body,
				Instructions: d.Instructions,
				Model:        d.Model,
				Tags:         d.Tags,
				Positive:     d.Positive,
				Negative:     d.Negative,
				Publish:      c.Bool("publish"),
			}

			output, err := ops.SaveDraft(c.Context, db, cfg, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a draft by ID",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted drafts"},
			&cli.BoolFlag{Name: "no-body", Usage: "Exclude the body from output"},
		},
		Action: func(c *cli.Context) error {
			input := ops.FetchDraftInput{
				ID:             c.Args().First(),
				IncludeDeleted: c.Bool("include-deleted"),
			}

			if c.Bool("no-body") {
				includeBody := false
				input.IncludeBody = &includeBody
			}

			output, err := ops.FetchDraft(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List drafts, most recently updated first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status: draft|published"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted drafts"},
		},
		Action: func(c *cli.Context) error {
			input := ops.ListDraftsInput{
				Status:         c.String("status"),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			}

			output, err := ops.ListDrafts(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete a draft",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.DeleteDraft(c.Context, db, ops.DeleteDraftInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted drafts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeDraftsInput{}

			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.PurgeDrafts(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// workspaceCmd creates the workspace command.
func workspaceCmd(workspaces workspace.Store) *cli.Command {
	return &cli.Command{
		Name:      "workspace",
		Usage:     "Fetch a keyword workspace by token",
		ArgsUsage: "<token>",
		Action: func(c *cli.Context) error {
			output, err := ops.FetchWorkspace(c.Context, workspaces, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// previewCmd creates the preview command.
func previewCmd(db *sql.DB, assistant *assist.Client) *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Render a stored draft as markdown and HTML",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "generate", Aliases: []string{"g"}, Usage: "Append the assistant's generated text (requires OPENAI_API_KEY)"},
			&cli.BoolFlag{Name: "html", Usage: "Print only the HTML"},
		},
		Action: func(c *cli.Context) error {
			input := ops.RenderPreviewInput{ID: c.Args().First()}

			if c.Bool("generate") {
				generated, p, err := generateForDraft(c.Context, db, assistant, input.ID)
				if err != nil {
					return outputError(err)
				}
				input = ops.RenderPreviewInput{Draft: p, Generated: generated}
			}

			output, err := ops.RenderPreview(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("html") {
				_, err := fmt.Fprint(os.Stdout, output.HTML)
				return err
			}
			return outputJSON(output)
		},
	}
}

// generateForDraft fetches a draft and asks the assistant for its text.
func generateForDraft(ctx context.Context, db *sql.DB, assistant *assist.Client, id string) (string, *prompt.Prompt, error) {
	if !assistant.Configured() {
		return "", nil, errors.NewInvalidRequest("assistant not configured (set OPENAI_API_KEY)")
	}
	fetched, err := ops.FetchDraft(ctx, db, ops.FetchDraftInput{ID: id})
	if err != nil {
		return "", nil, err
	}
	generated, err := assistant.Generate(ctx, prompt.Compose(&fetched.Prompt))
	if err != nil {
		return "", nil, err
	}
	return generated, &fetched.Prompt, nil
}

// replayCmd creates the replay command.
func replayCmd(db *sql.DB, cfg *config.Config, workspaces workspace.Store, assistant *assist.Client, log *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "Drive a workbench from a JSON event script on stdin and print the final draft",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "settle", Usage: "How long to wait for pending saves and syncs after the last event (default: derived from config)"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("event script must be piped via stdin"))
			}

			text, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			events, err := parseScript(text)
			if err != nil {
				return outputError(err)
			}

			settle := c.Duration("settle")
			if settle <= 0 {
				settle = defaultSettle(cfg)
			}

			svc := backend.New(cfg, db, workspaces, assistant, log)
			output := runReplay(c.Context, svc, cfg, log, events, settle)

			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var bErr *errors.BenchError
	if stderrors.As(err, &bErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", bErr.Code, bErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}

// parseTags splits a comma-separated string into a slice of tags.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
