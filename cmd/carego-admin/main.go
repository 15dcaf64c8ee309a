package main

import "github.com/example/carego/cmd/carego-admin/cmd"

func main() {
	cmd.Execute()
}
