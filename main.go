package main

import "github.com/andresmejia3/spoofguard/cmd"

func main() {
	cmd.Execute()
}
