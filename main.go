package main

import "github.com/reloquent/pgpromote/cmd"

func main() {
	cmd.Execute()
}
