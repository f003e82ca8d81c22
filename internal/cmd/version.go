package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jguida941/voiceterm-sub001/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the voiceterm version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.DisplayVersion())
		},
	}
}
