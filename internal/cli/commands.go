package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/konfigurator/catalogstore/internal/article"
	"github.com/konfigurator/catalogstore/internal/server"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return opts.withRuntime(ctx, func(rt *server.Runtime) error {
				return server.Serve(ctx, rt)
			})
		},
	}
}

func newArticlesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "articles", Short: "Manage articles"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List articles ordered by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(rt *server.Runtime) error {
				list, err := rt.Service.ListArticles(cmd.Context())
				if err != nil {
					return err
				}
				return opts.write(cmd.OutOrStdout(), list)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create an article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(rt *server.Runtime) error {
				a, err := rt.Service.CreateArticle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return opts.write(cmd.OutOrStdout(), a)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename an article",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(rt *server.Runtime) error {
				a, err := rt.Service.RenameArticle(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return opts.write(cmd.OutOrStdout(), a)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete an article and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(rt *server.Runtime) error {
				a, err := rt.Service.DeleteArticle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a == nil {
					return article.NotFoundf("article %q not found", args[0])
				}
				return opts.write(cmd.OutOrStdout(), a)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clone ID NAME",
		Short: "Clone an article with its latest snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(rt *server.Runtime) error {
				a, err := rt.Service.CloneArticle(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return opts.write(cmd.OutOrStdout(), a)
			})
		},
	})
	return cmd
}

func newVersionsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "versions", Short: "Inspect and append snapshot history"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list ID",
		Short: "List an article's versions oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(rt *server.Runtime) error {
				list, err := rt.Service.ListVersions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return opts.write(cmd.OutOrStdout(), list)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get ID VERSION",
		Short: "Print one snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[1], err)
			}
			return opts.withRuntime(cmd.Context(), func(rt *server.Runtime) error {
				snap, err := rt.Service.GetVersion(cmd.Context(), args[0], v)
				if err != nil {
					return err
				}
				return opts.write(cmd.OutOrStdout(), snap)
			})
		},
	})

	var file string
	save := &cobra.Command{
		Use:   "save ID",
		Short: "Save a catalog document as the next version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			return opts.withRuntime(cmd.Context(), func(rt *server.Runtime) error {
				v, err := rt.Service.SaveSnapshot(cmd.Context(), args[0], payload)
				if err != nil {
					return err
				}
				return opts.write(cmd.OutOrStdout(), map[string]any{"articleId": args[0], "versionId": v})
			})
		},
	}
	save.Flags().StringVarP(&file, "file", "f", "-", "catalog document to read (- for stdin)")
	cmd.AddCommand(save)

	cmd.AddCommand(&cobra.Command{
		Use:   "latest ID",
		Short: "Print the latest catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(rt *server.Runtime) error {
				c, err := rt.Service.GetLatestCatalog(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if c == nil {
					return article.NotFoundf("article %q has no catalog", args[0])
				}
				return opts.write(cmd.OutOrStdout(), c)
			})
		},
	})
	return cmd
}

func newLookupCommand(opts *RootOptions) *cobra.Command {
	var fallback bool
	cmd := &cobra.Command{
		Use:   "lookup NAME",
		Short: "Resolve an article by display name with its sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(rt *server.Runtime) error {
				lo := article.LookupOptions{FallbackAllWhenNoKeys: rt.Config.Lookup.FallbackAllWhenNoKeys}
				if cmd.Flags().Changed("fallback") {
					lo.FallbackAllWhenNoKeys = fallback
				}
				res, err := rt.Service.GetArticleDataAndSourcesByName(cmd.Context(), args[0], lo)
				if err != nil {
					return err
				}
				if res == nil {
					return article.NotFoundf("no article named %q", args[0])
				}
				return opts.write(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().BoolVar(&fallback, "fallback", true, "return all sources when the catalog declares none")
	return cmd
}

func newSourcesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "sources", Short: "Manage reference sources"}

	var file string
	put := &cobra.Command{
		Use:   "put KEY",
		Short: "Store a reference source record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			return opts.withRuntime(cmd.Context(), func(rt *server.Runtime) error {
				return rt.Service.PutSource(cmd.Context(), args[0], data)
			})
		},
	}
	put.Flags().StringVarP(&file, "file", "f", "-", "source JSON to read (- for stdin)")
	cmd.AddCommand(put)
	return cmd
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(file)
}
