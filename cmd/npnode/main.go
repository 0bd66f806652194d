// Command npnode runs and pokes at neuropil nodes.
//
//	npnode run --subscribe ping -i
//	npnode send ping "hello" --join <id>:udp4:localhost:3141
//	npnode identity --expires 24h
//	npnode status --codes
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
