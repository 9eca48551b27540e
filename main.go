package main

import (
	"github.com/wafilter/wafilter/cmd"
)

func main() {
	cmd.Execute()
}
