package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	config "github.com/phillip/volunteer-hub-go/config"
	exports "github.com/phillip/volunteer-hub-go/exports"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:       "export <projects|events|applications|registrations>",
	Short:     "Write records as CSV",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{exports.KindProjects, exports.KindEvents, exports.KindApplications, exports.KindRegistrations},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := args[0]
		if !exports.ValidKind(kind) {
			return fmt.Errorf("unknown kind %q", kind)
		}
		return withConfig(cmd, func(ctx context.Context, cfg *config.Config) error {
			var buf bytes.Buffer
			if err := exports.Write(ctx, cfg.Store, kind, &buf); err != nil {
				return err
			}
			switch exportOut {
			case "-":
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			case "":
				exportOut = exports.Filename(kind, time.Now())
			}
			if err := os.WriteFile(exportOut, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", exportOut)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", `output file, "-" for stdout (default: generated name)`)
}
