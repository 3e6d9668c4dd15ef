package media

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhotoFileName(t *testing.T) {
	day := time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC)
	name := PhotoFileName("U1", day, "https://cdn.example.com/p/abc.PNG?sig=1")

	assert.Regexp(t, regexp.MustCompile(`^photo_U1_20260304_[0-9a-f]{8}\.png$`), name)
	assert.Equal(t, name, PhotoFileName("U1", day, "https://cdn.example.com/p/abc.PNG?sig=1"), "names are deterministic")
	assert.NotEqual(t, name, PhotoFileName("U1", day, "https://cdn.example.com/p/other.PNG"))
	assert.Regexp(t, `\.jpg$`, PhotoFileName("U1", day, "https://cdn.example.com/p/noext"))
	assert.Regexp(t, `^photo_a_b_`, PhotoFileName("a/b", day, "x"))
}

func TestPhotoSlot(t *testing.T) {
	morning := time.Date(2026, 3, 4, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, PhotoSlot("U1", morning, "p1"), PhotoSlot("U1", evening, "p1"))
	assert.NotEqual(t, PhotoSlot("U1", morning, "p1"), PhotoSlot("U2", morning, "p1"))
	assert.NotEqual(t, PhotoSlot("U1", morning, "p1"), PhotoSlot("U1", morning, "p2"), "same-day photos own separate slots")
	assert.Equal(t, "photo/U1/2026-03-04/p1", PhotoSlot("U1", morning, "p1"))
}

func TestInWindow(t *testing.T) {
	// Wednesday of ISO week 10, 2026; week 10 starts Monday 2026-03-02.
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), WindowStart(now, 4))
	assert.True(t, InWindow(now, now, 4))
	assert.True(t, InWindow(time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), now, 4))
	assert.False(t, InWindow(time.Date(2026, 2, 8, 23, 59, 0, 0, time.UTC), now, 4))
	assert.True(t, InWindow(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), now, 1))
	assert.False(t, InWindow(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC), now, 1))
	assert.False(t, InWindow(now, now, 0))
}

func TestWindowStartOnSunday(t *testing.T) {
	sunday := time.Date(2026, 3, 8, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), WindowStart(sunday, 1))
}
