package main

import "github.com/bestruirui/tollfree/cmd"

func main() {
	cmd.Execute()
}
