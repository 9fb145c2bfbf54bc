package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/intent"
)

func routeCmd() *cobra.Command {
	var (
		intentName string
		confidence float64
		activeFlow string
		classify   bool
	)
	cmd := &cobra.Command{
		Use:   "route <text>",
		Short: "Show which flow or command a message would route to (no session changes)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := cmd.Context()
			text := strings.Join(args, " ")

			stores, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			if classify && intentName == "" {
				collab := buildCollaborators(cfg)
				if collab.Classifier == nil {
					return fmt.Errorf("--classify needs an NLU or LLM collaborator")
				}
				cls, err := collab.Classifier.Classify(ctx, text)
				if err != nil {
					slog.Warn("classification failed, routing without an intent", "error", err)
				} else {
					intentName, confidence = cls.Intent, cls.Confidence
				}
			}

			cache := intent.NewTriggerCache(stores.Triggers, time.Duration(cfg.Intent.TriggerTTLSec)*time.Second)
			if err := cache.Refresh(ctx); err != nil {
				return fmt.Errorf("load triggers: %w", err)
			}
			r := intent.NewRouter(cache,
				intent.WithDetectors(intent.NewParcelDetector(), intent.NewFoodDetector()),
				intent.WithThreshold(cfg.Intent.DetectorThreshold),
			)
			d := r.Route(ctx, intent.Input{
				Text:         text,
				Intent:       intentName,
				Confidence:   confidence,
				ActiveFlowID: activeFlow,
			})

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}
	cmd.Flags().StringVar(&intentName, "intent", "", "classifier intent to route with")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.9, "classifier confidence for --intent")
	cmd.Flags().StringVar(&activeFlow, "active-flow", "", "flow id assumed active for the conversation")
	cmd.Flags().BoolVar(&classify, "classify", false, "call the configured classifiers when --intent is not given")
	return cmd
}
