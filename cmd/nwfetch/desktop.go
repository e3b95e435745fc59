package main

import (
	"fmt"

	"github.com/adrien-f/nwfetch/launcher"
	"github.com/spf13/cobra"
)

func newDesktopCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "desktop DIR",
		Short: "Write a Linux .desktop launcher for a packaged application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := launcher.Descriptor{
				PackageName: a.v.GetString("package-name"),
				AppName:     a.v.GetString("app-name"),
				AppVersion:  a.v.GetString("app-version"),
			}
			if d.PackageName == "" {
				d.PackageName = d.AppName
			}
			path, err := launcher.WriteDesktopFile(args[0], d)
			if err != nil {
				return err
			}
			a.logger.Info("wrote desktop file", "path", path)
			fmt.Fprintln(a.stdout, path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("app-name", "", "application name, also the executable name")
	flags.String("app-version", "", "application version")
	flags.String("package-name", "", "desktop file name without extension (default is the app name)")
	return cmd
}
