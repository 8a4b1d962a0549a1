// Package cli implements the livedoc command line.
//
// Configuration is resolved with this precedence, highest first:
//
//  1. command-line flags (--port, --out, ...)
//  2. LIVEDOC_<SECTION>_<OPTION> environment variables, including values
//     loaded from .env and .env.local
//  3. the config file: --config, LIVEDOC_CONFIG_FILE or ./.livedoc.yml
//  4. built-in defaults
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"livedoc/internal/config"
	lderrors "livedoc/internal/errors"
	"livedoc/internal/logging"
)

const envPrefix = "LIVEDOC"

type rootOptions struct {
	configFile string
	v          *viper.Viper
}

// NewRootCommand builds the command tree. Each call has its own viper
// instance.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "livedoc",
		Short: "Render a markdown file and keep it in sync with the browser",
		Long: `livedoc renders a markdown document into a single HTML page with a
table of contents.

In serve mode the page is live: edits to the file reload every open viewer,
edits made in the browser are written back to the file, and fenced code
blocks can be run from the page.`,
		SilenceUsage:      true,
		PersistentPreRunE: opts.setup,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default .livedoc.yml, or LIVEDOC_CONFIG_FILE)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	_ = opts.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = opts.v.BindPFlag("log.format", flags.Lookup("log-format"))

	cmd.AddCommand(
		newRenderCommand(opts),
		newServeCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}

	v := o.v
	switch {
	case o.configFile != "":
		v.SetConfigFile(o.configFile)
	case os.Getenv(envPrefix+"_CONFIG_FILE") != "":
		v.SetConfigFile(os.Getenv(envPrefix + "_CONFIG_FILE"))
	default:
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".livedoc")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || o.configFile != "" {
			return lderrors.Wrap(err, lderrors.CodeConfigInvalid, "reading config file")
		}
	}

	logging.Configure(logging.Options{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
		Output: cmd.ErrOrStderr(),
	})
	if used := v.ConfigFileUsed(); used != "" {
		logging.NewLogger("cli").WithField("file", used).Debug("using config file")
	}
	return nil
}

// load binds the flags of the running command to their config keys and
// returns the resolved configuration.
func (o *rootOptions) load(flags *pflag.FlagSet, bindings map[string]string) (*config.Config, error) {
	for flag, key := range bindings {
		if f := flags.Lookup(flag); f != nil {
			if err := o.v.BindPFlag(key, f); err != nil {
				return nil, lderrors.Wrap(err, lderrors.CodeConfigInvalid, "binding flag "+flag)
			}
		}
	}
	return config.Load(o.v)
}
