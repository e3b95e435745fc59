package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newVersionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List NW.js releases from the version manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			releases, err := c.ListVersions(cmd.Context())
			if err != nil {
				return err
			}

			limit := a.v.GetInt("limit")
			if limit > 0 && len(releases) > limit {
				releases = releases[:limit]
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tDATE\tFLAVORS")
			for _, r := range releases {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Version, r.Date, strings.Join(r.Flavors, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of releases to show (0 for all)")
	return cmd
}
