package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jassnet/Fraudhunter/internal/model"
	"github.com/jassnet/Fraudhunter/internal/service"
)

func newIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Replace one day of logs from the log source",
	}

	for _, unit := range []model.EventUnit{model.UnitClicks, model.UnitConversions} {
		unit := unit
		var date string
		sub := &cobra.Command{
			Use:   string(unit),
			Short: fmt.Sprintf("Ingest %s for --date", unit),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				day, err := model.ParseDate(date)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD, got %q", date)
				}
				b, err := a.openBackend(cmd.Context(), true)
				if err != nil {
					return err
				}
				defer b.close()

				var res *service.IngestResult
				if unit == model.UnitClicks {
					res, err = b.pipeline.IngestClicks(cmd.Context(), day)
				} else {
					res, err = b.pipeline.IngestConversions(cmd.Context(), day)
				}
				if err != nil {
					return err
				}
				return a.printJSON(res)
			},
		}
		sub.Flags().StringVar(&date, "date", "", "day to ingest (YYYY-MM-DD)")
		_ = sub.MarkFlagRequired("date")
		cmd.AddCommand(sub)
	}
	return cmd
}

func newRefreshCmd(a *app) *cobra.Command {
	var in service.RefreshInput
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Merge the last --hours of logs, skipping rows already stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.openBackend(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer b.close()

			res, err := b.pipeline.Refresh(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	cmd.Flags().IntVar(&in.Hours, "hours", service.DefaultRefreshHours, fmt.Sprintf("window to pull (1-%d)", service.MaxRefreshHours))
	cmd.Flags().BoolVar(&in.Clicks, "clicks", true, "refresh clicks")
	cmd.Flags().BoolVar(&in.Conversions, "conversions", true, "refresh conversions")
	cmd.Flags().BoolVar(&in.Detect, "detect", false, "run detection for every date in the window")
	return cmd
}

func newDetectCmd(a *app) *cobra.Command {
	var date, kind string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run the detectors for one stored day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := model.ParseDate(date)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD, got %q", date)
			}
			switch kind {
			case "clicks", "conversions", "combined":
			default:
				return fmt.Errorf("--kind must be clicks, conversions or combined, got %q", kind)
			}

			b, err := a.openBackend(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer b.close()

			ctx := cmd.Context()
			switch kind {
			case "clicks":
				findings, err := b.pipeline.DetectClicks(ctx, day)
				if err != nil {
					return err
				}
				return a.printJSON(nonNil(findings))
			case "conversions":
				findings, err := b.pipeline.DetectConversions(ctx, day)
				if err != nil {
					return err
				}
				return a.printJSON(nonNil(findings))
			}
			res, err := b.pipeline.Detect(ctx, day)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to evaluate (YYYY-MM-DD)")
	cmd.Flags().StringVar(&kind, "kind", "combined", "clicks, conversions or combined")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newSyncMastersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-masters",
		Short: "Pull media, promotion and user masters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.openBackend(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer b.close()

			res, err := b.pipeline.SyncMasters(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
