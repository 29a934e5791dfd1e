package main

import "github.com/spacenotes/spacenotes-sync/cmd"

func main() {
	cmd.Execute()
}
