// Command sage is a thin CLI over the memory engine: save, recall, debug,
// analyze, and maintain. It is glue only; all behavior lives in the engine.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/b17z/sage/checkpoint"
	"github.com/b17z/sage/config"
	"github.com/b17z/sage/core"
	"github.com/b17z/sage/engine"
	"github.com/b17z/sage/knowledge"
)

var (
	rootDir string
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "sage",
		Short: "Semantic memory for research sessions",
		Long:  "Persists research checkpoints and cross-session knowledge, with hybrid semantic+keyword recall.",
	}
	root.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "Store root (default: $SAGE_ROOT or ~/.sage)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	root.AddCommand(recallCmd(), debugCmd(), saveKnowledgeCmd(), deprecateCmd(), archiveCmd(), rmCmd(), saveCheckpointCmd(), analyzeCmd(), maintainCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func storeRoot() string {
	if rootDir != "" {
		return rootDir
	}
	if env := os.Getenv("SAGE_ROOT"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sage")
}

func open() (*engine.Engine, error) {
	log := zap.NewNop()
	if verbose {
		var err error
		log, err = zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
	}
	home, _ := os.UserHomeDir()
	return engine.New(storeRoot(),
		engine.WithLogger(log),
		engine.WithConfigPaths(config.Paths{
			UserFile:    filepath.Join(home, ".sage", "config.yaml"),
			ProjectFile: filepath.Join(".sage", "config.yaml"),
		}),
	)
}

func emit(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func recallCmd() *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Rank knowledge against a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := open()
			if err != nil {
				return err
			}
			res, err := eng.Recall(context.Background(), args[0], scope)
			if err != nil {
				return err
			}
			if res.Degraded {
				fmt.Fprintln(os.Stderr, "note: keyword-only recall active (no embedding model)")
			}
			return emit(res.Items)
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "Restrict to a skill/project scope")
	return cmd
}

func debugCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debug <query>",
		Short: "Show every item's score for a query, including near-misses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := open()
			if err != nil {
				return err
			}
			res, err := eng.DebugQuery(context.Background(), args[0])
			if err != nil {
				return err
			}
			return emit(res)
		},
	}
}

func saveKnowledgeCmd() *cobra.Command {
	var content, keywords, scope, itemType string
	cmd := &cobra.Command{
		Use:   "save <id>",
		Short: "Save a knowledge item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := open()
			if err != nil {
				return err
			}
			var kws []string
			if keywords != "" {
				for _, k := range strings.Split(keywords, ",") {
					kws = append(kws, strings.TrimSpace(k))
				}
			}
			it, err := eng.SaveKnowledge(context.Background(), knowledge.AddParams{
				ID:       args[0],
				Content:  content,
				Keywords: kws,
				Scope:    scope,
				Type:     knowledge.ItemType(itemType),
			})
			if err != nil {
				return err
			}
			return emit(it)
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "Item content")
	cmd.Flags().StringVar(&keywords, "keywords", "", "Comma-separated keywords")
	cmd.Flags().StringVar(&scope, "scope", "", "Skill/project scope")
	cmd.Flags().StringVar(&itemType, "type", "", "general-knowledge | preference | todo | reference")
	return cmd
}

func deprecateCmd() *cobra.Command {
	var reason, replacedBy string
	cmd := &cobra.Command{
		Use:   "deprecate <id>",
		Short: "Mark a knowledge item deprecated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := open()
			if err != nil {
				return err
			}
			return eng.DeprecateKnowledge(context.Background(), args[0], reason, replacedBy)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the item is deprecated")
	cmd.Flags().StringVar(&replacedBy, "replaced-by", "", "Id of the replacing item")
	return cmd
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a knowledge item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := open()
			if err != nil {
				return err
			}
			return eng.ArchiveKnowledge(context.Background(), args[0])
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a knowledge item and its embedding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := open()
			if err != nil {
				return err
			}
			return eng.RemoveKnowledge(args[0])
		},
	}
}

func saveCheckpointCmd() *cobra.Command {
	var question, thesis, trig string
	var confidence float64
	var messages, tokens int
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Save a research checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := open()
			if err != nil {
				return err
			}
			res, err := eng.SaveCheckpoint(context.Background(), &checkpoint.Checkpoint{
				Trigger:       trig,
				CoreQuestion:  question,
				Thesis:        thesis,
				Confidence:    confidence,
				MessageCount:  messages,
				TokenEstimate: tokens,
			})
			if err != nil {
				return err
			}
			return emit(res)
		},
	}
	cmd.Flags().StringVar(&question, "question", "", "Core question")
	cmd.Flags().StringVar(&thesis, "thesis", "", "Thesis text")
	cmd.Flags().StringVar(&trig, "trigger", checkpoint.TriggerManual, "Trigger kind")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.5, "Confidence 0-1")
	cmd.Flags().IntVar(&messages, "messages", 0, "Message count (0 = unknown)")
	cmd.Flags().IntVar(&tokens, "tokens", 0, "Token estimate (0 = unknown)")
	return cmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Replay a transcript from stdin and report save-worthy moments",
		Long:  "Reads one turn per line from stdin, prefixed \"user:\" or \"assistant:\" (unprefixed lines count as user turns), and prints every trigger that fires plus the session's depth counters.",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := open()
			if err != nil {
				return err
			}
			session := eng.NewSession()
			ctx := context.Background()

			type firedTrigger struct {
				Kind       string
				Confidence float64
				Reason     string
			}
			var fired []firedTrigger

			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				role, text := parseTurn(sc.Text())
				if text == "" {
					continue
				}
				trig, err := session.AnalyzeTurn(ctx, role, text)
				if err != nil {
					return err
				}
				if trig != nil {
					fired = append(fired, firedTrigger{
						Kind:       string(trig.Kind),
						Confidence: trig.Confidence,
						Reason:     trig.Reason,
					})
				}
			}
			if err := sc.Err(); err != nil {
				return err
			}

			messages, tokens := session.Counters()
			return emit(struct {
				Triggers      []firedTrigger
				Messages      int
				TokenEstimate int
			}{fired, messages, tokens})
		},
	}
}

// parseTurn splits a transcript line into role and text. Lines without a
// role prefix count as user turns.
func parseTurn(line string) (core.Role, string) {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "assistant:"):
		return core.RoleAssistant, strings.TrimSpace(strings.TrimPrefix(trimmed, "assistant:"))
	case strings.HasPrefix(trimmed, "user:"):
		return core.RoleUser, strings.TrimSpace(strings.TrimPrefix(trimmed, "user:"))
	default:
		return core.RoleUser, trimmed
	}
}

func maintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Prune both stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := open()
			if err != nil {
				return err
			}
			res, err := eng.RunMaintenance(nil)
			if err != nil {
				return err
			}
			return emit(res)
		},
	}
}
