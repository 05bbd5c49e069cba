package rest

import (
	"context"
	"mime"
	"net/http"
	"strconv"
	"time"
)

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func headerInt(header http.Header, key string, fallback int) int {
	if v := header.Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}

	return fallback
}

func headerSeconds(header http.Header, key string) time.Duration {
	if v := header.Get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return secondsToDuration(f)
		}
	}

	return 0
}

func secondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

func multipartDisposition(field, filename string) string {
	return mime.FormatMediaType("form-data", map[string]string{
		"name":     field,
		"filename": filename,
	})
}
