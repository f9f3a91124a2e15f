package commands

import (
	"log/slog"
	"time"

	"itsdu-backend/lib/scrapers/itslearning/resource"
	"itsdu-backend/lib/serviceutil"
	"itsdu-backend/lib/transfer"

	"github.com/spf13/cobra"
)

var downloadDir *string

func init() {
	downloadDir = downloadCmd.Flags().String("dir", ".", "The directory to download into.")
	rootCmd.AddCommand(downloadCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download <element-id> [--dir <path>]",
	Short: "Downloads an element's file into a directory.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cleanup := createService()
		defer cleanup()

		t1 := time.Now()
		path, err := svc.DownloadResource(
			cmd.Context(),
			resource.Reference{ElementID: args[0]},
			*downloadDir,
			logProgress(),
		)
		if err != nil {
			serviceutil.Fatal("download failed", err)
		}

		slog.Info("downloaded", "path", path, "seconds", time.Since(t1).Seconds())
	},
}

// logProgress reports at most once per percent, or once per mebibyte
// when the total is unknown.
func logProgress() func(transfer.Progress) {
	lastPercent := -1
	var lastMiB int64 = -1
	return func(p transfer.Progress) {
		if percent, known := p.Percent(); known {
			if percent != lastPercent {
				lastPercent = percent
				slog.Info("progress", "percent", percent)
			}
			return
		}
		mib := p.Loaded / (1 << 20)
		if mib != lastMiB {
			lastMiB = mib
			slog.Info("progress", "loaded_mib", mib)
		}
	}
}
