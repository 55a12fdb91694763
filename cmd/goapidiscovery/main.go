package main

import "github.com/dbsmedya/goapidiscovery/cmd/goapidiscovery/cmd"

func main() {
	cmd.Execute()
}
