package cmd

import (
	"context"
	"fmt"

	"github.com/foomo/keel/log"
	"github.com/foomo/posstore/pkg/confirm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewClearCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all stored data",
		Long:  "Delete all stored data. You are asked twice and have to type " + confirm.Phrase + " to confirm.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := log.Logger()

			s, err := newStorage(cmd.Context(), v, l)
			if err != nil {
				return err
			}
			defer func() {
				if err := s.Close(context.Background()); err != nil {
					l.Warn("failed to close storage", zap.Error(err))
				}
			}()

			cleared, err := s.ClearAll(cmd.Context(), confirm.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			if cleared {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "all data deleted")
			} else {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "nothing deleted")
			}
			return nil
		},
	}

	addStorageFlags(cmd.Flags(), v)

	return cmd
}
