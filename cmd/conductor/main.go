// Command conductor runs multi-agent plans and drives the persistent task
// queue.
package main

func main() {
	Execute()
}
