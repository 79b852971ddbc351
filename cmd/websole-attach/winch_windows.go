package main

import "os"

// Windows consoles have no resize signal; the size sent on connect is kept.
func notifyResize(ch chan<- os.Signal) {}
