package pdf

import (
	"context"
	"io"
)

// Provider renders billing documents.
type Provider interface {
	GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error)
}

func New() Provider {
	return &PDFProvider{}
}
