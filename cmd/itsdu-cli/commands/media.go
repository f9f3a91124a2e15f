package commands

import (
	"fmt"

	"itsdu-backend/lib/scrapers/itslearning/resource"
	"itsdu-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(mediaCmd)
	rootCmd.AddCommand(resolveCmd)
}

var mediaCmd = &cobra.Command{
	Use:   "media <element-id>",
	Short: "Resolves a media element down to its playable source URL.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cleanup := createService()
		defer cleanup()

		mediaURL, err := svc.GetMediaURL(cmd.Context(), resource.Reference{ElementID: args[0]})
		if err != nil {
			serviceutil.Fatal("failed to resolve media", err)
		}
		fmt.Println(mediaURL)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <element-id>",
	Short: "Resolves an element to its direct file URL.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cleanup := createService()
		defer cleanup()

		link, err := svc.GetResourceFile(cmd.Context(), resource.Reference{ElementID: args[0]})
		if err != nil {
			serviceutil.Fatal("failed to resolve resource", err)
		}
		fmt.Println(link.URL)
	},
}
