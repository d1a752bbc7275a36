package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyra-12/cogniviz/internal/logging"
	"github.com/dyra-12/cogniviz/internal/store"
	"github.com/dyra-12/cogniviz/internal/upload"
)

// #region submit

func newSubmitCmd(g *globals) *cobra.Command {
	var participant string
	var history int

	cmd := &cobra.Command{
		Use:   "submit --participant <id>",
		Short: "Assemble the study aggregate and upload it once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(g)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if cfg.RedisAddr == "" {
				return errors.New("redis address required (redis_addr or COGNIVIZ_REDIS_ADDR)")
			}

			st, err := store.NewStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer st.Close()

			ctx := cmd.Context()
			preds, err := logging.ListPredictions(ctx, st.DB(), history)
			if err != nil {
				return err
			}
			agg, err := upload.Assemble(ctx, st, participant, preds, time.Now())
			if err != nil {
				return err
			}

			sub := upload.NewRedisSubmitter(cfg.RedisAddr, cfg.RedisKey)
			defer sub.Close()
			if err := sub.Ping(ctx); err != nil {
				return err
			}
			res, err := upload.Finalize(ctx, st, sub, agg, logger)
			if err != nil {
				return err
			}
			if res.Duplicate {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "already uploaded: %s\n", res.ID)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d predictions)\n", res.ID, len(agg.Predictions))
			return nil
		},
	}
	cmd.Flags().StringVar(&participant, "participant", "", "participant id used for the duplicate guard")
	cmd.Flags().IntVar(&history, "history", 0, "include only the last N predictions (0 = all)")
	return cmd
}

// #endregion submit
