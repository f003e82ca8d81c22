package main

import (
	"os"

	"github.com/jguida941/voiceterm-sub001/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
