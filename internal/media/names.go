package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

const defaultExt = ".jpg"

// PhotoFileName returns the deterministic local name for a photo's media:
// photo_<owner>_<yyyymmdd>_<hash8><ext>.
func PhotoFileName(owner string, captured time.Time, remote string) string {
	sum := sha256.Sum256([]byte(remote))
	return fmt.Sprintf("photo_%s_%s_%s%s",
		sanitize(owner), captured.UTC().Format("20060102"), hex.EncodeToString(sum[:4]), extOf(remote))
}

// PhotoSlot is the dedupe slot of one photo's media, grouped under its owner
// and calendar day. Each photo owns its slot, so replacing a slot's file never
// touches media another photo points at.
func PhotoSlot(owner string, captured time.Time, photoID string) string {
	return "photo/" + owner + "/" + captured.UTC().Format(time.DateOnly) + "/" + photoID
}

// InWindow reports whether t falls inside the cache window: the current ISO
// week and the weeks-1 before it, in UTC.
func InWindow(t, now time.Time, weeks int) bool {
	if weeks <= 0 {
		return false
	}
	return !t.Before(WindowStart(now, weeks))
}

// WindowStart returns the Monday 00:00 UTC that opens the cache window.
func WindowStart(now time.Time, weeks int) time.Time {
	now = now.UTC()
	offset := (int(now.Weekday()) + 6) % 7
	monday := time.Date(now.Year(), now.Month(), now.Day()-offset, 0, 0, 0, 0, time.UTC)
	return monday.AddDate(0, 0, -7*(weeks-1))
}

func extOf(remote string) string {
	u, err := url.Parse(remote)
	if err != nil {
		return defaultExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 6 {
		return defaultExt
	}
	return ext
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '_'
	}, s)
}
