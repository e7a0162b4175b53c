package main

import (
	"fmt"
	"os"
	"strings"

	"deployhook/internal/config"
	"deployhook/pkg/templates"

	"github.com/spf13/cobra"
)

type templateOptions struct {
	user          string
	group         string
	workingDir    string
	binary        string
	configFile    string
	envFile       string
	domain        string
	upstream      string
	webhookPath   string
	deployTimeout string
}

func newTemplateCmd() *cobra.Command {
	opts := &templateOptions{}

	cmd := &cobra.Command{
		Use:   "template <name>",
		Short: "Render a deployment template",
		Long: fmt.Sprintf(`Render a supporting configuration file to stdout.

Available templates: %s

Timeouts are derived from the deploy timeout so neither systemd nor the
reverse proxy cuts off a running deploy.`, strings.Join(templates.ListTemplates(), ", ")),
		Example: `  deployhook template systemd-service --user deploy > /etc/systemd/system/deployhook.service
  deployhook template nginx-site --domain hooks.example.com > /etc/nginx/sites-available/deployhook`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := renderTemplate(args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.user, "user", "deploy", "Service user")
	flags.StringVar(&opts.group, "group", "", "Service group (default: same as user)")
	flags.StringVar(&opts.workingDir, "working-dir", "/srv/deployhook", "Service working directory")
	flags.StringVar(&opts.binary, "binary", "", "Path to the deployhook binary (default: this executable)")
	flags.StringVar(&opts.configFile, "config-file", "", "Config file passed to serve")
	flags.StringVar(&opts.envFile, "env-file", "", "systemd EnvironmentFile holding DEPLOYHOOK_SECRET")
	flags.StringVar(&opts.domain, "domain", "", "Public domain for the nginx site")
	flags.StringVar(&opts.upstream, "upstream", fmt.Sprintf("127.0.0.1:%d", config.DefaultPort), "Address deployhook listens on")
	flags.StringVar(&opts.webhookPath, "webhook-path", config.DefaultWebhookPath, "Webhook URL path")
	flags.StringVar(&opts.deployTimeout, "deploy-timeout", "600", "Deploy time limit in seconds or as a duration")

	return cmd
}

func renderTemplate(name string, opts *templateOptions) (string, error) {
	timeout, err := config.ParseTimeout(opts.deployTimeout)
	if err != nil {
		return "", fmt.Errorf("invalid --deploy-timeout: %w", err)
	}
	// Leave room for the response to be written after the deploy finishes.
	grace := int((timeout + writeGrace).Seconds())

	switch name {
	case templates.SystemdService:
		binary := opts.binary
		if binary == "" {
			if binary, err = os.Executable(); err != nil {
				return "", fmt.Errorf("failed to locate executable: %w", err)
			}
		}
		group := opts.group
		if group == "" {
			group = opts.user
		}
		return templates.RenderSystemdService(templates.SystemdData{
			User:               opts.user,
			Group:              group,
			WorkingDir:         opts.workingDir,
			Binary:             binary,
			ConfigFile:         opts.configFile,
			EnvFile:            opts.envFile,
			StopTimeoutSeconds: grace,
		})
	case templates.NginxSite:
		if opts.domain == "" {
			return "", fmt.Errorf("--domain is required for %s", templates.NginxSite)
		}
		return templates.RenderNginxSite(templates.NginxData{
			Domain:             opts.domain,
			WebhookPath:        opts.webhookPath,
			Upstream:           opts.upstream,
			ReadTimeoutSeconds: grace,
		})
	default:
		return "", fmt.Errorf("unknown template %q (available: %s)", name, strings.Join(templates.ListTemplates(), ", "))
	}
}
