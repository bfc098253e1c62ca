package xkit

import (
	"log"
	"os"
)

// Logger receives diagnostics that have no caller to return to, such as
// asynchronous X errors from unchecked requests discarded while polling and
// teardown noise. Point it elsewhere (or at io.Discard) to redirect or
// silence the package.
var Logger = log.New(os.Stderr, "xkit: ", log.Lshortfile)
