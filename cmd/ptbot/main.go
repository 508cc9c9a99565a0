package main

import (
	"github.com/ptscripts/ptbot/internal/cli"
)

// Build information set via ldflags:
//
//	go build -ldflags "-X main.commit=$(git rev-parse --short HEAD) -X main.date=$(date -u +%Y-%m-%d)"
var (
	commit = "none"
	date   = "unknown"
)

func main() {
	cli.SetBuildInfo(commit, date)
	cli.Execute()
}
