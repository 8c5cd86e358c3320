package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/wai/internal/config"
	"github.com/flemzord/wai/internal/security"
	"github.com/flemzord/wai/modules/provider/workersai"
)

// providerFlags are shared by the commands that talk to Workers AI directly.
type providerFlags struct {
	baseURL string
	apiKey  string
}

func (f *providerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "Workers AI or AI Gateway base URL (overrides the config file)")
	cmd.Flags().StringVar(&f.apiKey, "api-key", os.Getenv("CLOUDFLARE_API_TOKEN"), "Cloudflare API token (default $CLOUDFLARE_API_TOKEN)")
}

// resolve merges the provider.workersai section of the config file, when one
// is found, with the flags. Flags win.
func (f *providerFlags) resolve(cmd *cobra.Command) (workersai.Config, *slog.Logger, error) {
	var (
		wcfg    workersai.Config
		cfg     *config.Config
		findErr error
		loadErr error
	)

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, findErr = config.FindPath()
	}
	if findErr == nil {
		cfg, loadErr = config.Load(path)
	}
	if cfg != nil {
		if node, ok := cfg.Modules[workersai.ModuleID]; ok {
			if err := node.Decode(&wcfg); err != nil {
				return wcfg, nil, fmt.Errorf("decoding %s: %w", workersai.ModuleID, err)
			}
		}
	}

	// A missing or broken config file is fine when the flags say everything.
	if f.baseURL != "" {
		wcfg.BaseURL = f.baseURL
	}
	if f.apiKey != "" {
		wcfg.APIKey = f.apiKey
	}
	if wcfg.BaseURL == "" || wcfg.APIKey == "" {
		if cfgErr := errors.Join(findErr, loadErr); cfgErr != nil {
			return wcfg, nil, errors.Join(errors.New("base URL and API key are required"), cfgErr)
		}
		return wcfg, nil, errors.New("base URL and API key are required (flags or config file)")
	}

	redactor := security.NewRedactor()
	redactor.AddLiteral(wcfg.APIKey)

	opts := security.LogOptions{Level: "warn"}
	if cfg != nil {
		opts.Format = cfg.Logging.Format
		if cfg.Logging.Level != "" {
			opts.Level = cfg.Logging.Level
		}
	}
	logger, err := security.NewLogger(cmd.ErrOrStderr(), opts, redactor)
	if err != nil {
		return wcfg, nil, err
	}

	switch {
	case loadErr != nil:
		logger.Warn("ignoring config file, using flags", "path", path, "error", loadErr)
	case findErr != nil:
		logger.Debug("no config file, using flags", "error", findErr)
	}
	return wcfg, logger, nil
}

func modelsCmd() *cobra.Command {
	var flags providerFlags
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the text-generation models available to the account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wcfg, logger, err := flags.resolve(cmd)
			if err != nil {
				return err
			}

			models := workersai.FetchModels(cmd.Context(), wcfg.BaseURL, wcfg.APIKey, workersai.WithLogger(logger))
			if len(models) == 0 {
				return errors.New("no models returned (see the log for details)")
			}
			out := cmd.OutOrStdout()
			for _, m := range models {
				fmt.Fprintln(out, m)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
