// Package generatecmder provides the generate command, which streams a
// one-shot generation for a prompt and renders the result.
package generatecmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/pulse/pkg/cliui"
	"github.com/papercomputeco/pulse/pkg/config"
	"github.com/papercomputeco/pulse/pkg/dotdir"
	"github.com/papercomputeco/pulse/pkg/generation"
	"github.com/papercomputeco/pulse/pkg/transport"
)

const generateLongDesc string = `Stream a generation for a prompt.

The prompt is sent to the generation endpoint and the response is streamed
back chunk by chunk with a progress bar. When the server reports completion
the text is rendered as markdown. Use "-" as the prompt to read it from
stdin.

The last successful generation is saved in the .pulse/ directory and can be
shown again with --last.

Examples:
  pulse generate "Summarise yesterday's price changes"
  pulse generate --param tone=formal --param audience=ops "Draft a status update"
  echo "Plan the weekend campaign" | pulse generate -
  pulse generate --json "List the top three anomalies"
  pulse generate --last`

const generateShortDesc string = "Stream a generation for a prompt"

type generateCommander struct {
	baseURL        string
	token          string
	generationPath string
	params         map[string]string
	asJSON         bool
	raw            bool
	last           bool
	noSave         bool
	debug          bool

	configDir string
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
}

// output is the --json shape.
type output struct {
	Prompt  string          `json:"prompt"`
	Text    string          `json:"text"`
	Chunks  int             `json:"chunks"`
	Skipped int             `json:"skipped"`
	Result  json.RawMessage `json:"result,omitempty"`
}

func NewGenerateCmd() *cobra.Command {
	cmder := &generateCommander{}

	cmd := &cobra.Command{
		Use:   "generate [prompt...]",
		Short: generateShortDesc,
		Long:  generateLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString(config.ConfigDirFlag)
			cmder.stdin = cmd.InOrStdin()
			cmder.stdout = cmd.OutOrStdout()
			cmder.stderr = cmd.ErrOrStderr()

			if cmder.last {
				return cmder.showLast()
			}

			prompt, err := cmder.prompt(args)
			if err != nil {
				return err
			}

			cfg, err := config.Resolve(cmd, config.FlagBaseURL, config.FlagToken, config.FlagGenerationPath)
			if err != nil {
				return err
			}

			log := cfg.NewLogger(cmder.stderr, cmder.debug)
			client, err := transport.New(cfg.Client(log))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return cmder.run(ctx, client, prompt, log)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagBaseURL, &cmder.baseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagToken, &cmder.token)
	config.AddStringFlag(cmd, config.Flags, config.FlagGenerationPath, &cmder.generationPath)
	cmd.Flags().StringToStringVarP(&cmder.params, "param", "p", nil, "Extra request parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the text without markdown rendering")
	cmd.Flags().BoolVar(&cmder.last, "last", false, "Show the last saved generation and exit")
	cmd.Flags().BoolVar(&cmder.noSave, "no-save", false, "Do not save the result to the .pulse/ directory")

	return cmd
}

// prompt joins args, or reads stdin for a single "-".
func (c *generateCommander) prompt(args []string) (string, error) {
	var prompt string
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return "", fmt.Errorf("reading prompt from stdin: %w", err)
		}
		prompt = string(data)
	} else {
		prompt = strings.Join(args, " ")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("a prompt is required")
	}
	return prompt, nil
}

func (c *generateCommander) run(ctx context.Context, opener generation.Opener, prompt string, l *slog.Logger) error {
	req := generation.Request{Prompt: prompt}
	if len(c.params) > 0 {
		req.Params = make(map[string]any, len(c.params))
		for k, v := range c.params {
			req.Params[k] = v
		}
	}

	bar := newProgressBar(c.stderr, c.asJSON)
	gen := generation.New(opener, generation.WithProgress(bar.update), generation.WithLogger(l))

	start := time.Now()
	res, err := gen.Run(ctx, req)
	bar.done()
	if err != nil {
		return describe(err)
	}
	l.Info("generation completed", "chunks", res.Chunks, "skipped", res.Skipped, "duration", time.Since(start))

	if !c.noSave {
		last := &dotdir.LastGeneration{
			Prompt:      prompt,
			Text:        res.Text,
			Result:      res.Raw,
			CompletedAt: time.Now().UTC(),
		}
		if err := dotdir.NewManager().SaveLastGeneration(last, c.configDir); err != nil {
			return err
		}
	}

	if c.asJSON {
		return c.writeJSON(output{
			Prompt:  prompt,
			Text:    res.Text,
			Chunks:  res.Chunks,
			Skipped: res.Skipped,
			Result:  res.Raw,
		})
	}
	return c.writeText(res.Text)
}

func (c *generateCommander) showLast() error {
	last, err := dotdir.NewManager().LoadLastGeneration(c.configDir)
	if err != nil {
		return err
	}
	if last == nil {
		return errors.New("no saved generation")
	}

	if c.asJSON {
		return c.writeJSON(output{Prompt: last.Prompt, Text: last.Text, Result: last.Result})
	}

	fmt.Fprintf(c.stdout, "  %s %s\n", cliui.KeyStyle.Render("Prompt:"), last.Prompt)
	fmt.Fprintf(c.stdout, "  %s %s\n\n", cliui.KeyStyle.Render("At:    "),
		cliui.DimStyle.Render(last.CompletedAt.Local().Format(time.DateTime)))
	return c.writeText(last.Text)
}

func (c *generateCommander) writeJSON(out output) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// writeText renders markdown for terminals and prints plain text otherwise.
func (c *generateCommander) writeText(text string) error {
	if c.raw || !cliui.IsTerminalWriter(c.stdout) {
		_, err := fmt.Fprintln(c.stdout, text)
		return err
	}

	width := 80
	if f, ok := c.stdout.(*os.File); ok {
		width = min(cliui.TerminalWidth(f, 80), 120)
	}
	rendered, err := cliui.RenderMarkdown(text, width)
	if err != nil {
		_, err = fmt.Fprintln(c.stdout, rendered)
		return err
	}
	_, err = fmt.Fprint(c.stdout, rendered)
	return err
}

// describe turns generation failures into user-facing errors.
func describe(err error) error {
	var streamErr *generation.StreamError
	switch {
	case errors.As(err, &streamErr):
		return fmt.Errorf("server reported an error: %s", streamErr.Message)
	case errors.Is(err, generation.ErrIncomplete):
		return errors.New("the stream ended before the generation completed")
	case errors.Is(err, context.Canceled):
		return errors.New("generation cancelled")
	default:
		return err
	}
}

// progressBar draws generation progress on a terminal. It is silent when w
// is not a terminal.
type progressBar struct {
	w       io.Writer
	model   progress.Model
	enabled bool
	drawn   bool
}

func newProgressBar(w io.Writer, quiet bool) *progressBar {
	return &progressBar{
		w:       w,
		model:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		enabled: !quiet && cliui.IsTerminalWriter(w),
	}
}

func (b *progressBar) update(p generation.Progress) {
	if !b.enabled {
		return
	}
	b.drawn = true
	fmt.Fprintf(b.w, "\r  %s %s", b.model.ViewAs(float64(p.Percent)/100), cliui.DimStyle.Render(progressLabel(p)))
}

func (b *progressBar) done() {
	if b.drawn {
		fmt.Fprintln(b.w)
	}
}

func progressLabel(p generation.Progress) string {
	switch p.Status {
	case generation.StatusStreaming:
		return fmt.Sprintf("%d chunks", p.Chunks)
	default:
		return p.Status.String()
	}
}
