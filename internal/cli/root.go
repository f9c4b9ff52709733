package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// DefaultAPIURL — адрес API по умолчанию.
const DefaultAPIURL = "http://localhost:8080"

// NewRootCmd создаёт корневую команду onboarder.
func NewRootCmd(version string) *cobra.Command {
	var apiURL string
	var jsonOutput bool

	root := &cobra.Command{
		Use:           "onboarder",
		Short:         "onboarder — property onboarding client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := DefaultAPIURL
	if v := os.Getenv("ONBOARDER_API_URL"); v != "" {
		defaultURL = v
	}

	root.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL (env ONBOARDER_API_URL)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *Client { return NewClient(apiURL) }
	outputFn := func() *Output { return NewOutputTo(root.OutOrStdout(), root.ErrOrStderr(), jsonOutput) }

	root.AddCommand(
		NewSubmitCmd(clientFn, outputFn),
		NewStatusCmd(clientFn, outputFn),
		NewRetryCmd(clientFn, outputFn),
		NewCancelCmd(clientFn, outputFn),
		NewMissingCmd(clientFn, outputFn),
	)

	return root
}
