package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lipolab/postboard/models"
	"github.com/lipolab/postboard/utils"
)

// PostLister supplies the stored posts for the local fallback and reindexing.
type PostLister interface {
	ListAll() ([]models.Post, error)
}

// Service mirrors posts into the sink and answers queries, scanning stored posts when the sink fails.
type Service struct {
	sink   Sink
	posts  PostLister
	logger *zap.Logger
}

// ServiceOption configures a search Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for the search service.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("SearchService")
		}
	}
}

// NewService builds a Service. A nil sink is treated as disabled.
func NewService(sink Sink, posts PostLister, opts ...ServiceOption) *Service {
	if sink == nil {
		sink = Disabled()
	}
	s := &Service{sink: sink, posts: posts, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Available reports whether the external index is in use.
func (s *Service) Available() bool {
	return s.sink.Available()
}

// OnPostCreated mirrors post into the sink. Failures are logged only.
func (s *Service) OnPostCreated(ctx context.Context, post *models.Post) {
	if !s.sink.Available() {
		return
	}
	if err := s.sink.Index(ctx, post); err != nil {
		utils.ReportFailure(s.logger, utils.FailureDegraded, "search indexing failed", zap.String("post", post.ID), zap.Error(err))
	}
}

// Query returns matching posts and the backend that served them.
// A blank query skips the sink and is answered by the local scan, where it matches everything.
func (s *Service) Query(ctx context.Context, q string) ([]models.Post, string, error) {
	if s.sink.Available() && strings.TrimSpace(q) != "" {
		posts, err := s.sink.Query(ctx, q)
		if err == nil {
			s.logger.Debug("search served by elasticsearch", zap.Int("hits", len(posts)))
			return posts, servedByElastic, nil
		}
		utils.ReportFailure(s.logger, utils.FailureDegraded, "search query failed, falling back to local scan", zap.Error(err))
	}
	posts, err := s.localSearch(q)
	return posts, servedByLocal, err
}

// localSearch is a case-insensitive substring match over title and content.
func (s *Service) localSearch(q string) ([]models.Post, error) {
	all, err := s.posts.ListAll()
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	needle := strings.ToLower(q)
	out := make([]models.Post, 0)
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Title), needle) || strings.Contains(strings.ToLower(p.Content), needle) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Reindex pushes every stored post to the sink and returns how many were indexed.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if !s.sink.Available() {
		return 0, ErrSinkDisabled
	}
	all, err := s.posts.ListAll()
	if err != nil {
		return 0, fmt.Errorf("list posts: %w", err)
	}
	n := 0
	for i := range all {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := s.sink.Index(ctx, &all[i]); err != nil {
			utils.ReportFailure(s.logger, utils.FailurePartialItem, "reindex post failed", zap.String("post", all[i].ID), zap.Error(err))
			continue
		}
		n++
	}
	s.logger.Info(fmt.Sprintf("pushed %d documents", n))
	return n, nil
}
