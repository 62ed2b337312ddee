// Package main provides devmem, a command line driver for the device memory layer.
package main

func main() {
	execute()
}
