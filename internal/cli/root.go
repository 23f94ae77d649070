// Package cli wires the quarry commands together.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry/internal/config"
	"github.com/quarrydata/quarry/internal/logging"
	"github.com/quarrydata/quarry/pkg/client"
	"github.com/quarrydata/quarry/pkg/models"
)

// env carries the resolved configuration and client shared by commands.
type env struct {
	cfgPath   string
	serverURL string
	logLevel  string

	cfg    *config.Config
	client *client.Client
	token  *client.TokenFile
}

// New builds the quarry root command.
func New() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "quarry",
		Short:         "Browse and manage resources on a Quarry server",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Sync()
		},
	}

	root.PersistentFlags().StringVar(&e.cfgPath, "config", "", "config file (default $HOME/.config/quarry/config.yaml)")
	root.PersistentFlags().StringVar(&e.serverURL, "server", "", "server URL (overrides config)")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(
		newLoginCmd(e),
		newLogoutCmd(e),
		newLsCmd(e),
		newBrowseCmd(e),
		newDownloadCmd(e),
		newCacheCmd(e),
	)
	return root
}

func (e *env) setup() error {
	cfg, err := config.Load(e.cfgPath)
	if err != nil {
		return err
	}
	if e.serverURL != "" {
		cfg.ServerURL = strings.TrimSuffix(e.serverURL, "/")
	}
	if e.logLevel != "" {
		cfg.LogLevel = e.logLevel
	}
	e.cfg = cfg

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return err
	}

	e.client = client.New(client.Config{
		BaseURL: cfg.ServerURL,
		Timeout: cfg.Timeout,
	})

	tf, err := client.LoadTokenFile(cfg.TokenFile)
	if err != nil {
		return err
	}
	if tf != nil && tf.Server == cfg.ServerURL && !tf.IsExpired(time.Minute) {
		e.token = tf
		e.client.SetAuthToken(tf.Token)
	}
	return nil
}

// requireAuth fails early when no usable token is installed.
func (e *env) requireAuth() error {
	if e.client.AuthToken() == "" {
		return fmt.Errorf("not logged in, run \"quarry login\" first")
	}
	return nil
}

// parseRef parses a "kind/id" resource reference.
func parseRef(arg string) (models.Kind, string, error) {
	kindStr, id, ok := strings.Cut(arg, "/")
	if !ok || id == "" {
		return "", "", fmt.Errorf("resource reference must look like kind/id, got %q", arg)
	}
	kind, err := models.ParseKind(kindStr)
	if err != nil {
		return "", "", err
	}
	return kind, id, nil
}
