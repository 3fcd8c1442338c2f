package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "store",
		Short: "Fetch every city once and upsert the batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Jobs().FetchAndStore(cmd.Context()); err != nil {
				a.Logger().Error("store failed", zap.Error(err))
			}
			return nil
		},
	}
}

func newKeepAliveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keepalive",
		Short: "Run one liveness query against the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Jobs().KeepAlive(cmd.Context()); err != nil {
				a.Logger().Error("keep-alive failed", zap.Error(err))
			}
			return nil
		},
	}
}
