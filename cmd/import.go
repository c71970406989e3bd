package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/foomo/keel/log"
	"github.com/foomo/posstore/pkg/backup"
	"github.com/foomo/posstore/pkg/confirm"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewImportCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Restore a backup file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if latestFlag(v) == (len(args) == 1) {
				return errors.New("either a backup file or --latest is required")
			}
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

			var c confirm.Confirmer = confirm.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
			if yesFlag(v) {
				c = confirm.Yes("")
			}

			var report *backup.Report
			if latestFlag(v) {
				report, err = s.ImportLatest(cmd.Context(), c)
			} else {
				var file *os.File
				if file, err = os.Open(args[0]); err != nil {
					return err
				}
				defer file.Close()
				report, err = s.Import(cmd.Context(), file, c)
			}
			if errors.Is(err, backup.ErrNotConfirmed) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "restore cancelled")
				return nil
			} else if err != nil {
				return err
			}

			out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if skipped := report.Skipped(); len(skipped) > 0 {
				l.Warn("some fields were not restored", zap.Strings("skipped", skipped), zap.Error(report.Err()))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	addLatestFlag(flags, v)
	addYesFlag(flags, v)
	addStorageFlags(flags, v)

	return cmd
}
