// Command msgproxy serves the message protocol on top of a chat-completion backend.
//
// Usage:
//
//	msgproxy                      # serve with ./config.yaml or the XDG default
//	msgproxy serve --config /etc/msgproxy/config.yaml
//	msgproxy models --resolve claude-3-5-sonnet-20241022
//	msgproxy init
//	msgproxy version
package main

import "github.com/nghyane/msgproxy/internal/cli"

func main() {
	cli.Execute()
}
