//go:build tools

package tools

// Tool dependencies pinned in go.mod. Run `go run github.com/vektra/mockery/v2`
// from the module root to regenerate mocks (see .mockery.yaml).
import (
	_ "github.com/vektra/mockery/v2"
)
