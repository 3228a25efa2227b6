package main

import (
	"os"

	"github.com/sunilpie-kumar/kustom-backend/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Stderr.WriteString("kustom: " + err.Error() + "\n")
		os.Exit(1)
	}
}
