package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wolfman30/support-intel/internal/assistant"
	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/internal/needs"
	"github.com/wolfman30/support-intel/internal/sentiment"
	"github.com/wolfman30/support-intel/internal/tracker"
)

var rootCmd = &cobra.Command{
	Use:           "assistant",
	Short:         "Drive the conversation engine from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level written to stderr (default warn)")
	rootCmd.AddCommand(turnCmd, replayCmd, showCmd, evaluateCmd, completeCmd, schemaCmd, analyzeCmd)

	turnCmd.Flags().String("id", "", "conversation id")
	turnCmd.Flags().String("role", "user", "turn role: user or assistant")
	turnCmd.Flags().String("text", "", "turn text")

	replayCmd.Flags().String("id", "", "conversation id")
	replayCmd.Flags().String("file", "", "transcript file, one turn per line (\"-\" for stdin)")
	replayCmd.Flags().Bool("all", false, "print the response for every turn, not just the last")

	for _, c := range []*cobra.Command{showCmd, evaluateCmd, completeCmd} {
		c.Flags().String("id", "", "conversation id")
	}

	schemaCmd.Flags().String("file", "", "schema YAML to validate (default: embedded schema)")
	analyzeCmd.Flags().String("file", "", "transcript file, one turn per line (\"-\" for stdin)")
}

func requiredString(cmd *cobra.Command, name string) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return v, nil
}

func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *assistant.Service) (any, error)) error {
	level, _ := cmd.Flags().GetString("log-level")
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	engine, err := newEngine(ctx, level)
	if err != nil {
		return err
	}
	defer engine.Close()

	out, err := fn(ctx, engine.Service)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

// --- turn ---

var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "Record one turn and print the engine response",
	Long: `Record one turn and print the engine response.

Examples:
  assistant turn --id web-42 --text "SEO対策について相談したいです"
  assistant turn --id web-42 --role assistant --text "ご予算を教えてください"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requiredString(cmd, "id")
		if err != nil {
			return err
		}
		text, err := requiredString(cmd, "text")
		if err != nil {
			return err
		}
		role, _ := cmd.Flags().GetString("role")
		return withService(cmd, func(ctx context.Context, svc *assistant.Service) (any, error) {
			return svc.HandleTurn(ctx, assistant.TurnRequest{ConversationID: id, Role: role, Text: text})
		})
	},
}

// --- replay ---

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Feed a transcript through the engine turn by turn",
	Long: `Feed a transcript through the engine turn by turn.

Each non-empty line is a user turn unless prefixed with "assistant:".
Lines may also be prefixed with "user:".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requiredString(cmd, "id")
		if err != nil {
			return err
		}
		path, err := requiredString(cmd, "file")
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")
		turns, err := readTranscript(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}
		if len(turns) == 0 {
			return fmt.Errorf("transcript %s has no turns", path)
		}

		return withService(cmd, func(ctx context.Context, svc *assistant.Service) (any, error) {
			var responses []*assistant.TurnResponse
			for _, t := range turns {
				resp, err := svc.HandleTurn(ctx, assistant.TurnRequest{ConversationID: id, Role: string(t.Role), Text: t.Content})
				if err != nil {
					return nil, err
				}
				responses = append(responses, resp)
			}
			if all {
				return responses, nil
			}
			return responses[len(responses)-1], nil
		})
	},
}

// --- show / evaluate / complete ---

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a stored conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requiredString(cmd, "id")
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *assistant.Service) (any, error) {
			return svc.GetConversation(ctx, id)
		})
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run the escalation evaluation for a conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requiredString(cmd, "id")
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *assistant.Service) (any, error) {
			return svc.Evaluate(ctx, id)
		})
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Close a conversation without escalating",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requiredString(cmd, "id")
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *assistant.Service) (any, error) {
			return svc.Complete(ctx, id)
		})
	},
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Validate and print the category schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		schema, err := tracker.LoadSchema(path)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(schema)
	},
}

// --- analyze ---

type analysis struct {
	Category  conversation.Category `json:"category"`
	Sentiment sentiment.Analysis    `json:"sentiment"`
	Needs     []needs.Candidate     `json:"needs"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score sentiment and mine needs for a transcript without storing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := requiredString(cmd, "file")
		if err != nil {
			return err
		}
		turns, err := readTranscript(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}

		tr := tracker.New(nil, nil)
		var userText strings.Builder
		for _, t := range turns {
			if t.Role == conversation.RoleUser {
				userText.WriteString(t.Content)
				userText.WriteString("\n")
			}
		}
		return printJSON(cmd.OutOrStdout(), analysis{
			Category:  tr.Categorize(userText.String()),
			Sentiment: sentiment.NewClassifier(nil).AnalyzeConversation(turns),
			Needs:     needs.NewMiner(nil, nil).Mine(cmd.Context(), turns),
		})
	},
}

func readTranscript(stdin io.Reader, path string) ([]conversation.Turn, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening transcript: %w", err)
		}
		defer f.Close()
		r = f
	}
	return parseTranscript(r)
}

func parseTranscript(r io.Reader) ([]conversation.Turn, error) {
	var turns []conversation.Turn
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		role := conversation.RoleUser
		if prefix, rest, ok := strings.Cut(line, ":"); ok {
			if parsed, valid := conversation.ParseRole(prefix); valid {
				role = parsed
				line = strings.TrimSpace(rest)
			}
		}
		if line == "" {
			continue
		}
		turns = append(turns, conversation.Turn{Role: role, Content: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return turns, nil
}
