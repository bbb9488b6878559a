/*
Copyright © 2025 MultiGit contributors
*/
package main

import "github.com/multigit-dev/multigit/cmd"

func main() {
	cmd.Execute()
}
