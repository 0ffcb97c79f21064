package main

import (
	"os"

	"github.com/spigell/job-aggregator/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
