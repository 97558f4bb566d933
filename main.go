/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/readshelf/apiserver/cmd"

func main() {
	cmd.Execute()
}
