package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/goapidiscovery/internal/catalog"
	"github.com/dbsmedya/goapidiscovery/internal/config"
	"github.com/dbsmedya/goapidiscovery/internal/logger"
	"github.com/dbsmedya/goapidiscovery/internal/pipeline"
	"github.com/dbsmedya/goapidiscovery/internal/restclient"
)

// Scope flags shared by the commands that read or write state.
var (
	targetNamespace string
	targetAPI       string
	targetVersion   string
)

// fs is the filesystem for state and specs. Tests swap it for a MemMapFs.
var fs afero.Fs = afero.NewOsFs()

func addTargetFlags(c *cobra.Command) {
	c.Flags().StringVar(&targetNamespace, "namespace", "", "Scope namespace (e.g. now)")
	c.Flags().StringVar(&targetAPI, "api-name", "", "Scope API name (e.g. table)")
	c.Flags().StringVar(&targetVersion, "api-version", "", "Scope API version (e.g. v1)")
}

func currentTarget() pipeline.Target {
	return pipeline.Target{Namespace: targetNamespace, API: targetAPI, Version: targetVersion}
}

// app bundles what a command needs after configuration is loaded.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	client   *restclient.Client
	pipeline *pipeline.Pipeline
}

// newApp loads configuration and applies flag overrides. Online commands also
// validate the instance settings and build a REST client.
func newApp(online bool) (*app, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyOverrides(GetCLIOverrides())

	if online {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}

	var client pipeline.Client
	if online {
		c, err := restclient.NewFromConfig(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
		a.client = c
		client = c
	}

	p, err := pipeline.New(cfg, fs, client, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	a.pipeline = p
	return a, nil
}

// resolver builds the default catalog strategy chain.
func (a *app) resolver() *catalog.Resolver {
	var browser *catalog.BrowserFile
	if a.cfg.Run.BrowserCatalog != "" {
		browser = catalog.NewBrowserFile(fs, a.cfg.Run.BrowserCatalog)
	}
	return catalog.NewDefaultResolver(a.client, browser, a.log)
}

// signalContext derives a context from the command that is cancelled on
// SIGINT or SIGTERM.
func (a *app) signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return pipeline.SetupSignalHandler(parent, func(sig os.Signal) {
		a.log.Warnf("Received %s - stopping after the current request...", sig)
	})
}

// interrupted reports a cancelled run. The state saved so far stays on disk.
func (a *app) interrupted(err error, what string) bool {
	if errors.Is(err, context.Canceled) {
		a.log.Warnf("%s cancelled by user", what)
		return true
	}
	return false
}
