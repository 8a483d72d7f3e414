package main

import "github.com/npezzotti/go-chatrelay/cmd/relayctl/cmd"

func main() {
	cmd.Execute()
}
