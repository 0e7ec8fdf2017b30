// Command insights-cli queries an insights server from the terminal.
//
// Usage:
//
//	insights-cli prices AAPL,MSFT
//	insights-cli movers AAPL MSFT GOOG --losers
//	insights-cli entities AAPL
//	insights-cli lookup apple
//	insights-cli session create --symbols AAPL,MSFT
//	insights-cli watch <session-id>
//	insights-cli local AAPL MSFT
package main

import (
	"fmt"
	"os"
)

const version = "0.3.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}
