package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orrery-dev/orrery/internal/config"
)

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default orrery.json",
		Long: `Write a default orrery.json configuration file.

Examples:
  orrery init
  orrery init /etc/orrery`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if config.Exists(dir) && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", filepath.Join(dir, config.ConfigFileName))
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			cfg := config.New()
			path := filepath.Join(dir, config.ConfigFileName)
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config")

	return cmd
}
