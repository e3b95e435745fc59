package main

import (
	"fmt"

	"github.com/adrien-f/nwfetch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newGetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Download and extract an NW.js runtime, printing its directory",
		Example: `  nwfetch get --version 0.44.5 --platform linux --arch x64
  nwfetch get --version latest --flavor sdk --platform win --platform osx
  nwfetch get --version stable --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := a.requests()
			if err != nil {
				return err
			}
			if a.v.GetBool("dry-run") {
				return a.dryRun(cmd, reqs)
			}
			return a.get(cmd, reqs)
		},
	}

	flags := cmd.Flags()
	flags.String("version", "latest", "NW.js version or alias (latest, stable, lts)")
	flags.String("flavor", string(nwfetch.FlavorNormal), "build flavor (normal or sdk)")
	flags.StringSlice("platform", nil, "target platform: linux, osx or win; repeatable (default is the host)")
	flags.String("arch", "", "target architecture: x64 or ia32 (default is the host)")
	flags.Bool("force", false, "download again even if the runtime is cached")
	flags.Bool("dry-run", false, "print the archive URL for each target without downloading")
	return cmd
}

// requests builds one request per target platform from flags, environment
// and config.
func (a *app) requests() ([]nwfetch.Request, error) {
	flavor, err := nwfetch.ParseFlavor(a.v.GetString("flavor"))
	if err != nil {
		return nil, err
	}

	hostPlatform, hostArch, hostErr := nwfetch.HostTarget()

	arch := hostArch
	if s := a.v.GetString("arch"); s != "" {
		if arch, err = nwfetch.ParseArch(s); err != nil {
			return nil, err
		}
	} else if hostErr != nil {
		return nil, fmt.Errorf("--arch is required: %w", hostErr)
	}

	names := a.v.GetStringSlice("platform")
	if len(names) == 0 {
		if hostErr != nil {
			return nil, fmt.Errorf("--platform is required: %w", hostErr)
		}
		names = []string{string(hostPlatform)}
	}

	reqs := make([]nwfetch.Request, 0, len(names))
	for _, name := range names {
		platform, err := nwfetch.ParsePlatform(name)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, nwfetch.Request{
			Version:       a.v.GetString("version"),
			Flavor:        flavor,
			Platform:      platform,
			Arch:          arch,
			ForceDownload: a.v.GetBool("force"),
		})
	}
	return reqs, nil
}

// get acquires every request concurrently and prints the resulting
// directories in request order.
func (a *app) get(cmd *cobra.Command, reqs []nwfetch.Request) error {
	c, err := a.client()
	if err != nil {
		return err
	}

	results := make([]*nwfetch.Result, len(reqs))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, req := range reqs {
		g.Go(func() error {
			res, err := c.Acquire(ctx, req)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", req.Platform, req.Arch, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, res := range results {
		for _, w := range res.Warnings {
			a.logger.Info("warning", "detail", w.Error())
		}
		fmt.Fprintln(a.stdout, res.Dir)
	}
	return nil
}

func (a *app) dryRun(cmd *cobra.Command, reqs []nwfetch.Request) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	for _, req := range reqs {
		resolved, err := c.Resolve(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, c.Locate(resolved).URL)
	}
	return nil
}
