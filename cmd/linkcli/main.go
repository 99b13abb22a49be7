package main

import (
	"github.com/robotalks/hostlink/pkg/cli/sh"
	"github.com/robotalks/hostlink/pkg/link/env"
)

//go-build: CGO_ENABLED=0

func init() {
	env.Default().Role = "host"
	env.SetupFlags()
}

func main() {
	sh.Main()
}
