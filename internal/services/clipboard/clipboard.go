// Package clipboard provides access to the system clipboard for the CLI's
// copy flag.
package clipboard

import (
	"errors"
	"strings"

	"github.com/atotto/clipboard"
)

// Copier copies textual data to the system clipboard.
type Copier interface {
	Copy(text string) error
}

// Service implements Copier using github.com/atotto/clipboard.
type Service struct{}

// NewService constructs a clipboard service implementation.
func NewService() *Service {
	return &Service{}
}

// Copy writes text to the system clipboard. Empty or whitespace-only text is
// rejected so the copy flag never silently clears the clipboard.
func (service *Service) Copy(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("refusing to copy empty output to the clipboard")
	}
	return clipboard.WriteAll(text)
}

var _ Copier = (*Service)(nil)
