// Command isalgen provisions the ISA-L native library and generates its
// cgo bindings.
package main

import "github.com/goplus/isal/cmd/isalgen/internal"

func main() {
	internal.Execute()
}
