package main

import (
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/spf13/cobra"
)

func (c *cli) reposCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repos",
		Short: "List the plugin repositories in search order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.manager(cmd)
			if err != nil {
				return err
			}

			printRepositories(newPrinter(cmd.OutOrStdout()), m.Registry().Repositories())

			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <url>",
			Short: "Register a repository in front of the search order",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := c.manager(cmd)
				if err != nil {
					return err
				}

				repos, err := m.Registry().RegisterRepository(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				printRepositories(newPrinter(cmd.OutOrStdout()), repos)

				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <url>",
			Short: "Unregister a repository",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := c.manager(cmd)
				if err != nil {
					return err
				}

				repos, err := m.Registry().UnregisterRepository(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				printRepositories(newPrinter(cmd.OutOrStdout()), repos)

				return nil
			},
		},
	)

	return cmd
}

func printRepositories(p *printer, repos []string) {
	p.Heading("Repositories")
	for _, r := range repos {
		p.Item(r)
	}
}

func (c *cli) installCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install <category>...",
		Short: "Install the plugin archive of one or more categories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.manager(cmd)
			if err != nil {
				return err
			}

			var pending []string
			for _, cat := range args {
				if pending, err = m.Registry().Install(cmd.Context(), cat); err != nil {
					return err
				}
			}

			p := newPrinter(cmd.OutOrStdout())
			p.Heading("Model types")
			for _, mt := range m.Registry().ModelTypes() {
				p.Item(mt.Name)
			}

			if len(pending) > 0 {
				p.Heading("Pending classes")
				for _, c := range pending {
					p.Item(c)
				}
			}

			return nil
		},
	}
}

func (c *cli) categoriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the categories offered by the registered repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.manager(cmd)
			if err != nil {
				return err
			}

			cats, err := m.Registry().InstallableCategories(cmd.Context())
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout())
			p.Heading("Installable categories")
			for _, cat := range cats {
				suffix := ""
				if m.Registry().Installed(cat) {
					suffix = " (installed)"
				}

				p.Item(cat + suffix)
			}

			return nil
		},
	}
}

func (c *cli) typesCommand() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the installed model types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.manager(cmd)
			if err != nil {
				return err
			}

			mts := m.Registry().ModelTypes()
			if category != "" {
				mts = m.Registry().ModelTypesForCategory(category)
			}

			p := newPrinter(cmd.OutOrStdout())
			p.Heading("Model types")
			for _, mt := range mts {
				p.Item(mt.Name)
				p.Detail("class: " + mt.ClassName)

				if len(mt.Extensions) > 0 {
					p.Detail("extensions: " + strings.Join(mt.Extensions, ", "))
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only list the model types of this category")

	return cmd
}

func (c *cli) uploadCommand() *cobra.Command {
	var folder, contentType string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file as an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.TransientIO("upload", err, "unable to read %s", args[0])
			}

			ct := contentType
			if ct == "" {
				ct = mime.TypeByExtension(filepath.Ext(args[0]))
			}

			m, err := c.manager(cmd)
			if err != nil {
				return err
			}

			p, err := m.Upload(cmd.Context(), folder, filepath.Base(args[0]), ct, data)
			if err != nil {
				return err
			}

			out := newPrinter(cmd.OutOrStdout())
			out.Heading("Uploaded artifact")
			out.Item(p)
			out.Detail("content type: " + ct)

			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "/", "absolute repository folder")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type, derived from the file extension when empty")

	return cmd
}

func (c *cli) modelCommand() *cobra.Command {
	var modelType string

	cmd := &cobra.Command{
		Use:   "model <artifact>",
		Short: "Generate a model for an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.manager(cmd)
			if err != nil {
				return err
			}

			modelPath, err := m.GenerateModel(cmd.Context(), args[0], modelType)
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout())
			p.Heading("Generated model")
			p.Item(modelPath)

			recs, err := m.Dependencies(cmd.Context(), modelPath)
			if err != nil {
				return err
			}

			printDependencies(p, recs)

			return nil
		},
	}

	cmd.Flags().StringVar(&modelType, "type", "", "model type name, the default model type of the artifact when empty")

	return cmd
}

func (c *cli) depsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <model>",
		Short: "List the dependencies recorded for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.manager(cmd)
			if err != nil {
				return err
			}

			recs, err := m.Dependencies(cmd.Context(), path.Clean(args[0]))
			if err != nil {
				return err
			}

			printDependencies(newPrinter(cmd.OutOrStdout()), recs)

			return nil
		},
	}
}
