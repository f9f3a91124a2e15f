package commands

import (
	"context"
	"fmt"
	"os"

	"itsdu-backend/lib/browser"
	"itsdu-backend/lib/scrapers/itslearning/auth"
	"itsdu-backend/lib/serviceutil"
	"itsdu-backend/services/resources"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "itsdu-cli",
	Short: "itsdu-cli resolves, inspects and downloads itslearning course content.",
}

var (
	accessToken *string
	browserBin  *string
)

func init() {
	accessToken = rootCmd.PersistentFlags().String(
		"access-token", "",
		"The portal access token. Falls back to the ITSDU_ACCESS_TOKEN environment variable.",
	)
	browserBin = rootCmd.PersistentFlags().String(
		"browser-bin", "",
		"Path to a chromium binary. Auto-detected when empty.",
	)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// createService spins up a browser manager and the resources service
// for one CLI invocation. The returned cleanup tears the browser down.
func createService() (*resources.Service, func()) {
	token := *accessToken
	if token == "" {
		token = os.Getenv("ITSDU_ACCESS_TOKEN")
	}
	if token == "" {
		serviceutil.Fatal("no access token", fmt.Errorf("pass --access-token or set ITSDU_ACCESS_TOKEN"))
	}

	sessions, err := browser.NewManager(browser.Options{
		Bin: *browserBin,
	})
	if err != nil {
		serviceutil.Fatal("failed to start browser", err)
	}

	svc := resources.NewService(
		sessions,
		auth.StaticTokenSource{auth.AccessToken: token},
		resources.Options{},
	)
	return svc, func() { sessions.Close() }
}
