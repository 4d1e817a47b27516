package main

import (
	"os"

	"github.com/G-Research/dbheartbeat/cmd/dbheartbeat/cmd"
	"github.com/G-Research/dbheartbeat/internal/common"
)

func main() {
	common.ConfigureLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
