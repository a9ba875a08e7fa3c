package main

import "github.com/KollinFreise/carbonAwareHome/cmd"

func main() {
	cmd.Execute()
}
