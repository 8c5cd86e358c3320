package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/wai/internal/config"
	"github.com/flemzord/wai/internal/gateway"
	"github.com/flemzord/wai/internal/security"
	"github.com/flemzord/wai/modules/provider/workersai"
)

// tokenEnvVar is written in place of the token unless the user asks to
// store it in the file.
const tokenEnvVar = "${CLOUDFLARE_API_TOKEN}"

// setupAnswers is what the wizard collects.
type setupAnswers struct {
	BaseURL     string
	APIKey      string
	StoreKey    bool
	Model       string
	GatewayBind string
}

// setupFile is the YAML layout written by the wizard.
type setupFile struct {
	Version string               `yaml:"version"`
	Modules map[string]any       `yaml:"modules"`
	Logging config.LoggingConfig `yaml:"logging"`
}

type providerSection struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model,omitempty"`
}

type gatewaySection struct {
	Bind     string `yaml:"bind"`
	Provider string `yaml:"provider"`
}

func setupCmd() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactively create a configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return err
				}
				output = p
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			answers, err := runWizard(cmd)
			if err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return errors.New("setup aborted")
				}
				return err
			}

			raw, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := writeConfig(output, raw); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", output)
			if !answers.StoreKey {
				fmt.Fprintf(cmd.OutOrStdout(), "Export CLOUDFLARE_API_TOKEN before running wai start.\n")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Where to write the file (default: the user config directory)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

// runWizard asks for credentials first, then offers the account's models.
func runWizard(cmd *cobra.Command) (setupAnswers, error) {
	a := setupAnswers{GatewayBind: "127.0.0.1:8080"}

	credentials := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Base URL").
				Description("https://api.cloudflare.com/client/v4/accounts/<account>/ai/v1 or https://gateway.ai.cloudflare.com/v1/<account>/<gateway>").
				Value(&a.BaseURL).
				Validate(validateBaseURL),
			huh.NewInput().
				Title("API token").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("a token is required")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Store the token in the file?").
				Description("Otherwise the file refers to " + tokenEnvVar + ".").
				Value(&a.StoreKey),
		),
	)
	if err := credentials.RunWithContext(cmd.Context()); err != nil {
		return a, err
	}

	// Never echo the token, even if huh logs something.
	redactor := security.NewRedactor()
	redactor.AddLiteral(a.APIKey)
	logger, err := security.NewLogger(cmd.ErrOrStderr(), security.LogOptions{Level: "warn"}, redactor)
	if err != nil {
		return a, err
	}

	models := workersai.FetchModels(cmd.Context(), a.BaseURL, a.APIKey, workersai.WithLogger(logger))

	var fields []huh.Field
	if len(models) > 0 {
		a.Model = models[0]
		fields = append(fields, huh.NewSelect[string]().
			Title("Default model").
			Options(huh.NewOptions(models...)...).
			Value(&a.Model))
	} else {
		fields = append(fields, huh.NewInput().
			Title("Default model").
			Description("The model list could not be fetched; leave empty to always pass one.").
			Placeholder("@cf/meta/llama-3.1-8b-instruct").
			Value(&a.Model))
	}
	fields = append(fields, huh.NewInput().
		Title("Gateway bind address").
		Description("Leave empty to skip the HTTP gateway.").
		Value(&a.GatewayBind))

	if err := huh.NewForm(huh.NewGroup(fields...)).RunWithContext(cmd.Context()); err != nil {
		return a, err
	}
	return a, nil
}

func validateBaseURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("enter an http(s) URL")
	}
	if workersai.DetectTopology(u.Hostname()) == workersai.TopologyUnsupported {
		return fmt.Errorf("%s is neither api.cloudflare.com nor gateway.ai.cloudflare.com", u.Hostname())
	}
	return nil
}

// renderConfig turns the answers into a configuration file accepted by
// config.Parse once CLOUDFLARE_API_TOKEN is set.
func renderConfig(a setupAnswers) ([]byte, error) {
	key := tokenEnvVar
	if a.StoreKey {
		key = a.APIKey
	}

	modules := map[string]any{
		workersai.ModuleID: providerSection{BaseURL: a.BaseURL, APIKey: key, Model: a.Model},
	}
	if a.GatewayBind != "" {
		modules[gateway.ModuleID] = gatewaySection{Bind: a.GatewayBind, Provider: workersai.ModuleID}
	}

	out, err := yaml.Marshal(setupFile{
		Version: "1",
		Modules: modules,
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	})
	if err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	return out, nil
}

func writeConfig(path string, raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
