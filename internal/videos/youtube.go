package videos

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"studydesk/pkg/domain"
)

// Searcher finds one recommended video per topic.
type Searcher interface {
	TopVideo(ctx context.Context, topic string) (domain.VideoRecommendation, bool, error)
}

// YouTubeSearcher implements Searcher against the YouTube Data API.
type YouTubeSearcher struct {
	service *youtube.Service
}

// NewYouTubeSearcher builds a searcher with an API key.
func NewYouTubeSearcher(ctx context.Context, apiKey string) (*YouTubeSearcher, error) {
	service, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("init youtube client: %w", err)
	}
	return &YouTubeSearcher{service: service}, nil
}

// TopVideo returns the top search hit for a topic, or ok=false when the
// search produced no usable result.
func (s *YouTubeSearcher) TopVideo(ctx context.Context, topic string) (domain.VideoRecommendation, bool, error) {
	call := s.service.Search.List([]string{"snippet"}).
		Context(ctx).
		Q(topic).
		Type("video").
		MaxResults(1)
	resp, err := call.Do()
	if err != nil {
		return domain.VideoRecommendation{}, false, fmt.Errorf("youtube search %q: %w", topic, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.VideoId == "" {
		return domain.VideoRecommendation{}, false, nil
	}
	item := resp.Items[0]
	return domain.VideoRecommendation{
		Title:   item.Snippet.Title,
		VideoID: item.Id.VideoId,
		URL:     "https://www.youtube.com/watch?v=" + item.Id.VideoId,
	}, true, nil
}
