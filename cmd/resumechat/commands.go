package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/resumechat/internal/api"
	"github.com/kalambet/resumechat/internal/chat"
	"github.com/kalambet/resumechat/internal/composer"
	"github.com/kalambet/resumechat/internal/config"
	"github.com/kalambet/resumechat/internal/profile"
	"github.com/kalambet/resumechat/internal/storage"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send a message to the running server and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		reply, err := askServer(cmd.Context(), client, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func askServer(ctx context.Context, c *apiClient, message string) (string, error) {
	resp, err := c.post(ctx, "/chat", map[string]string{"message": message})
	if err != nil {
		return "", err
	}
	var out struct {
		Reply string `json:"reply"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect the résumé document",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the résumé as it appears in the prompt",
	Long: `Print the résumé document exactly as it is embedded in the prompt.

With --prompt, print the complete prompt that would be sent for the given
message, persona instructions included.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		doc, err := profile.LoadFile(cfg.Profile.Path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !cmd.Flags().Changed("prompt") {
			fmt.Fprintln(out, doc.Indented())
			return nil
		}

		message, _ := cmd.Flags().GetString("prompt")
		variant, err := chat.LookupVariant(cfg.Chat.Variant)
		if err != nil {
			return err
		}
		prompt := composer.New(cfg.Chat.PersonaName).Compose(variant.Persona, doc, message)
		fmt.Fprintln(out, prompt)
		console{w: cmd.ErrOrStderr()}.field("Estimated tokens", "%d", composer.EstimateTokens(prompt))
		return nil
	},
}

func init() {
	profileShowCmd.Flags().String("prompt", "", "print the full prompt for this message")
	profileCmd.AddCommand(profileShowCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded chat interactions",
	Long: `List recorded chat interactions, newest first, or show one in full
with --id.

Recording is off by default; enable it with
  resumechat config set storage.record_interactions true`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		opts := historyOptions{}
		opts.limit, _ = cmd.Flags().GetInt("limit")
		opts.prune, _ = cmd.Flags().GetDuration("prune")
		opts.id, _ = cmd.Flags().GetString("id")
		return runHistory(cmd.OutOrStdout(), console{w: cmd.ErrOrStderr()}, cfg, opts)
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of interactions")
	historyCmd.Flags().Duration("prune", 0, "delete interactions older than this before listing (e.g. 720h)")
	historyCmd.Flags().String("id", "", "show a single interaction in full")
}

type historyOptions struct {
	limit int
	prune time.Duration
	id    string
}

func runHistory(w io.Writer, out console, cfg config.Config, opts historyOptions) error {
	if !cfg.Storage.RecordInteractions {
		out.warn("interaction recording is disabled (storage.record_interactions)")
	}
	if !storage.Exists(cfg.Storage.DataDir) {
		if opts.id != "" {
			return fmt.Errorf("interaction %s: %w", opts.id, storage.ErrNotFound)
		}
		printHistory(w, nil)
		return nil
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	if opts.id != "" {
		ix, err := store.GetInteraction(opts.id)
		if err != nil {
			return fmt.Errorf("interaction %s: %w", opts.id, err)
		}
		printInteraction(w, ix)
		return nil
	}

	if opts.prune > 0 {
		n, err := store.PruneInteractions(time.Now().Add(-opts.prune))
		if err != nil {
			return fmt.Errorf("pruning interactions: %w", err)
		}
		out.success("Pruned %d interactions older than %s", n, opts.prune)
	}

	interactions, err := store.GetRecentInteractions(opts.limit)
	if err != nil {
		return err
	}
	printHistory(w, interactions)
	return nil
}

func printHistory(w io.Writer, interactions []storage.Interaction) {
	if len(interactions) == 0 {
		fmt.Fprintln(w, "No interactions recorded.")
		return
	}
	for _, ix := range interactions {
		fmt.Fprintf(w, "\n%s  %s  %s  %s  %dms\n",
			paint(bold, ix.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			statusText(ix.Status), ix.ID, ix.Model, ix.Duration.Milliseconds())
		fmt.Fprintf(w, "  Q: %s\n", oneLine(ix.Message, 200))
		if ix.Status == storage.StatusFailed {
			fmt.Fprintf(w, "  !: %s\n", oneLine(ix.Error, 200))
		} else {
			fmt.Fprintf(w, "  A: %s\n", oneLine(ix.Reply, 200))
		}
	}
}

func printInteraction(w io.Writer, ix storage.Interaction) {
	c := console{w: w}
	c.field("ID", "%s", ix.ID)
	c.field("Time", "%s", ix.CreatedAt.Local().Format(time.RFC3339))
	c.field("Status", "%s", statusText(ix.Status))
	c.field("Variant", "%s", ix.Variant)
	c.field("Model", "%s", ix.Model)
	c.field("Duration", "%s", ix.Duration)
	fmt.Fprintf(w, "\n%s\n%s\n", paint(bold, "Message"), ix.Message)
	if ix.Status == storage.StatusFailed {
		fmt.Fprintf(w, "\n%s\n%s\n", paint(bold, "Error"), ix.Error)
	} else {
		fmt.Fprintf(w, "\n%s\n%s\n", paint(bold, "Reply"), ix.Reply)
	}
}

func statusText(status string) string {
	if status == storage.StatusFailed {
		return paint(red, status)
	}
	return paint(green, status)
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server on stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout.

Exposes the tool "ask" and the resources resume://profile and
resume://recent. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log.Level)

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		deps := api.MCPDeps{Chat: a.chat, Version: version}
		if a.store != nil {
			deps.History = a.store
		}
		return serveMCP(cmd.Context(), logger, api.NewMCPServer(deps))
	},
}

func serveMCP(ctx context.Context, logger *slog.Logger, s *server.MCPServer) error {
	stdio := server.NewStdioServer(s)
	logger.Info("MCP server started (stdio transport)")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", paint(bold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if key == "chat.variant" {
			if _, err := chat.LookupVariant(value); err != nil {
				return err
			}
		}
		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		console{w: cmd.ErrOrStderr()}.success("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
