package cmd

import (
	"remixai/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the RemixAI HTTP server",
	Long:  `Start the HTTP server exposing upload, separation, generation, mixing and download endpoints.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
