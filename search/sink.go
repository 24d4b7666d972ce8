package search

import (
	"context"
	"errors"

	"github.com/lipolab/postboard/models"
)

const (
	servedByElastic = "elasticsearch"
	servedByLocal   = "local"
)

// ErrSinkDisabled is returned by a sink that could not be initialized.
var ErrSinkDisabled = errors.New("search: sink disabled")

// Sink mirrors post documents into a full-text index.
type Sink interface {
	Available() bool
	Index(ctx context.Context, post *models.Post) error
	Query(ctx context.Context, q string) ([]models.Post, error)
}

type disabledSink struct{}

// Disabled returns a sink that rejects every call.
func Disabled() Sink { return disabledSink{} }

func (disabledSink) Available() bool { return false }

func (disabledSink) Index(context.Context, *models.Post) error { return ErrSinkDisabled }

func (disabledSink) Query(context.Context, string) ([]models.Post, error) {
	return nil, ErrSinkDisabled
}
