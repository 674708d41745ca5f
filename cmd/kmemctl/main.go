// Command kmemctl inspects multiboot memory map dumps and boots the hosted
// kernel core against them.
package main

func main() {
	execute()
}
