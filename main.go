package main

import "github.com/elmanelman/sql-judge/cmd"

func main() {
	cmd.Execute()
}
