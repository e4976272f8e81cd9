package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "backdrop",
	Short: "Backdrop is a conversational photo background editor",
	Long: `Backdrop removes the background of a photo and places the subject on a
solid color or on another photo. It serves the editing channel and the
operator reports over HTTP.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
}
