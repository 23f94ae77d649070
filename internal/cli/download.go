package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry/internal/cache"
	"github.com/quarrydata/quarry/pkg/protocol"
)

func newDownloadCmd(e *env) *cobra.Command {
	var output string
	var noCache bool

	cmd := &cobra.Command{
		Use:   "download <kind/id>...",
		Short: "Download resources as a single archive",
		Long: `Download one or more resources bundled into a single archive.

Repeated downloads of the same selection are served from the local
cache.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.requireAuth(); err != nil {
				return err
			}

			resources := protocol.ResourceMap{}
			for _, arg := range args {
				kind, id, err := parseRef(arg)
				if err != nil {
					return err
				}
				resources.Add(kind, id)
			}

			c, err := cache.New(e.cfg.CacheDir, e.cfg.CacheMaxSize)
			if err != nil {
				return err
			}
			key := cache.Key(resources)

			path, hit := c.Get(key)
			if hit && !noCache {
				color.Green("cache hit")
			} else {
				rc, err := e.client.Download(cmd.Context(), resources)
				if err != nil {
					return err
				}
				path, err = c.Put(key, rc)
				rc.Close()
				if err != nil {
					return err
				}
			}

			if output == "" {
				output = key + ".zip"
			}
			if err := copyFile(path, output); err != nil {
				return err
			}

			info, err := os.Stat(output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", output, humanize.Bytes(uint64(info.Size())))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <key>.zip)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "always re-download")
	return cmd
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func newCacheCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the download cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cache.New(e.cfg.CacheDir, e.cfg.CacheMaxSize)
			if err != nil {
				return err
			}
			size, maxSize, count := c.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d archives, %s of %s\n",
				c.Dir(), count, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(maxSize)))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cache.New(e.cfg.CacheDir, e.cfg.CacheMaxSize)
			if err != nil {
				return err
			}
			if err := os.RemoveAll(c.Dir()); err != nil {
				return err
			}
			color.Green("cache cleared")
			return nil
		},
	})

	return cmd
}
