package migrate

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MediaAnchor is the directory every stored media path starts with
const MediaAnchor = "media"

// splitPath normalizes separators and splits into non-empty segments
func splitPath(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			segs = append(segs, s)
		}
	}
	return segs
}

// anchorIndex picks the media segment a path is anchored at. Preference
// goes to the rightmost media segment followed by the shot name, then the
// rightmost one with at least a folder and a file after it, then the
// rightmost match at all. Returns -1 when no segment is named media
func anchorIndex(segs []string, shotName string) int {
	var matches []int
	for i, s := range segs {
		if strings.EqualFold(s, MediaAnchor) {
			matches = append(matches, i)
		}
	}
	if len(matches) == 0 {
		return -1
	}

	if shotName != "" {
		want := norm.NFC.String(shotName)
		for j := len(matches) - 1; j >= 0; j-- {
			i := matches[j]
			if i+1 < len(segs) && norm.NFC.String(segs[i+1]) == want {
				return i
			}
		}
	}
	for j := len(matches) - 1; j >= 0; j-- {
		if i := matches[j]; len(segs)-i-1 >= 2 {
			return i
		}
	}
	return matches[len(matches)-1]
}

// ExtractMediaPath returns the part of p starting at its media directory,
// with forward slashes and the anchor spelled "media". ok is false when p
// has no media segment, in which case p is returned unchanged
func ExtractMediaPath(p, shotName string) (string, bool) {
	segs := splitPath(p)
	i := anchorIndex(segs, shotName)
	if i < 0 {
		return p, false
	}
	out := append([]string{MediaAnchor}, segs[i+1:]...)
	return strings.Join(out, "/"), true
}

// RewriteShotSegment replaces the shot folder segment of a media-anchored
// path with the numeric shot id. Only that segment changes. ok is false
// when the segment after media is not the expected shot name
func RewriteShotSegment(mediaPath, shotName string, shotID int64) (string, bool) {
	segs := splitPath(mediaPath)
	if len(segs) < 2 || !strings.EqualFold(segs[0], MediaAnchor) {
		return mediaPath, false
	}
	if shotName != "" && norm.NFC.String(segs[1]) != norm.NFC.String(shotName) {
		return mediaPath, false
	}
	segs[1] = strconv.FormatInt(shotID, 10)
	return strings.Join(segs, "/"), true
}

// ResolveMediaPath maps a stored media-anchored path to a path relative to
// the media root. ok is false for paths that are not media-anchored
func ResolveMediaPath(stored string) (string, bool) {
	segs := splitPath(stored)
	if len(segs) < 2 || !strings.EqualFold(segs[0], MediaAnchor) {
		return "", false
	}
	return strings.Join(segs[1:], "/"), true
}
