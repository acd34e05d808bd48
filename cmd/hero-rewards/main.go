// Command hero-rewards runs the hero grade rewards engine and its operator tooling.
package main

func main() {
	Execute()
}
