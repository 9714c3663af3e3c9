package main

import (
	"os"
	"runtime/debug"

	"github.com/mezonai/quorumcoin/cmd"
	"github.com/mezonai/quorumcoin/logx"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_ = logx.Errorf("NODE CRASHED: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
