package main

import "brandbook/client/brandbook-cli/cmd"

func main() {
	cmd.Execute()
}
