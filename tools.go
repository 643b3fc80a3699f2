//go:build tools

package tools

// Tool dependencies tracked with blank imports so `go run` resolves the
// pinned version. Run: go generate ./... to regenerate mocks.
import (
	_ "github.com/vektra/mockery/v2"
)
