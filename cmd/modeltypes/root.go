package main

import (
	"context"
	"strings"

	"github.com/jumppad-labs/modeltypes"
	"github.com/jumppad-labs/modeltypes/listing"
	"github.com/jumppad-labs/modeltypes/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// managerFactory opens the manager the commands operate on
type managerFactory func(ctx context.Context, o *modeltypes.Options, token string) (*modeltypes.Manager, error)

func defaultManagerFactory(ctx context.Context, o *modeltypes.Options, token string) (*modeltypes.Manager, error) {
	if token == "" {
		return modeltypes.Open(ctx, o)
	}

	return modeltypes.Open(ctx, o, modeltypes.WithLister(listing.New(token, o.FetchTimeout)))
}

type cli struct {
	v       *viper.Viper
	factory managerFactory
}

func newRootCommand(f managerFactory) *cobra.Command {
	c := &cli{v: viper.New(), factory: f}

	root := &cobra.Command{
		Use:           "modeltypes",
		Short:         "Install model type plugins and generate models for repository artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "HCL options file")
	root.PersistentFlags().String("state-dir", "", "folder holding the repository content")
	root.PersistentFlags().String("staging-dir", "", "folder plugin archives and units are staged in")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("token", "", "bearer token used when listing repositories")

	c.v.SetEnvPrefix("MODELTYPES")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	_ = c.v.BindPFlags(root.PersistentFlags())

	root.AddCommand(
		c.reposCommand(),
		c.installCommand(),
		c.categoriesCommand(),
		c.typesCommand(),
		c.uploadCommand(),
		c.modelCommand(),
		c.depsCommand(),
	)

	return root
}

// options builds the manager options from the config file, flags and
// MODELTYPES_ environment variables, flags win over the file
func (c *cli) options(cmd *cobra.Command) (*modeltypes.Options, error) {
	o := modeltypes.DefaultOptions()

	if f := c.v.GetString("config"); f != "" {
		var err error
		if o, err = modeltypes.LoadOptions(f); err != nil {
			return nil, err
		}
	}

	if d := c.v.GetString("state-dir"); d != "" {
		o.StateDir = d
	}

	if d := c.v.GetString("staging-dir"); d != "" {
		o.StagingDir = d
	}

	o.Logger = logger.NewWriterLogger(cmd.ErrOrStderr(), c.v.GetString("log-level"))

	return o, nil
}

func (c *cli) manager(cmd *cobra.Command) (*modeltypes.Manager, error) {
	o, err := c.options(cmd)
	if err != nil {
		return nil, err
	}

	return c.factory(cmd.Context(), o, c.v.GetString("token"))
}
