package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/foomo/keel/log"
	"github.com/foomo/posstore/pkg/backup"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// triggerCLI labels exports started from the command line
const triggerCLI = "cli"

func NewExportCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a backup file",
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

			var export *backup.Export
			if rawFlag(v) {
				export, err = s.ExportRaw(cmd.Context(), triggerCLI)
			} else {
				export, err = s.Export(cmd.Context(), triggerCLI)
			}
			if err != nil {
				return err
			}

			filename := filepath.Join(outFlag(v), export.Name)
			if err := os.WriteFile(filename, export.Data, 0600); err != nil {
				return fmt.Errorf("failed to write backup file: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), filename)
			return nil
		},
	}

	flags := cmd.Flags()
	addRawFlag(flags, v)
	addOutFlag(flags, v)
	addStorageFlags(flags, v)

	return cmd
}
