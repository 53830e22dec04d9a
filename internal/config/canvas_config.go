package config

import "time"

const (
	canvasTimeoutVar    = "CANVAS_HTTP_TIMEOUT"
	fetchConcurrencyVar = "FETCH_CONCURRENCY"
	canvasMaxPagesVar   = "CANVAS_MAX_PAGES"
)

type Canvas struct {
	src *source
}

var _ CanvasConfig = Canvas{}

func (c Canvas) GetCanvasHTTPTimeout() time.Duration {
	return c.src.duration(canvasTimeoutVar, 30*time.Second)
}

// GetFetchConcurrency bounds the parallel per-topic reply fetches
func (c Canvas) GetFetchConcurrency() int {
	return c.src.int(fetchConcurrencyVar, 8)
}

func (c Canvas) GetMaxPages() int {
	return c.src.int(canvasMaxPagesVar, 1000)
}
