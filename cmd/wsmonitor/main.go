package main

import "github.com/praksys/wsmonitor/cmd"

func main() {
	cmd.Execute()
}
