package media

import (
	"path"
	"strings"
)

// Kind is the role of a file inside a media folder, derived from its name
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindThumbnail
	KindImage
	KindBaseImage
	KindAsset
)

// Asset category folders that are copied wholesale and never shot-scoped
var AssetCategories = []string{"characters", "locations", "other"}

// Workflow take type recorded for video thumbnails
const TakeTypeVideoWorkflow = "video_workflow"

var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".mkv": true,
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindThumbnail:
		return "video_thumbnail"
	case KindImage:
		return "image"
	case KindBaseImage:
		return "base_image"
	case KindAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// Classify returns the kind of a file by its base name, case-insensitively
func Classify(name string) Kind {
	lower := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	ext := path.Ext(lower)

	switch {
	case strings.HasPrefix(lower, "video_"):
		if videoExtensions[ext] {
			return KindVideo
		}
		if ext == ".png" {
			return KindThumbnail
		}
	case strings.HasPrefix(lower, "image_"):
		if imageExtensions[ext] {
			return KindImage
		}
	case strings.HasPrefix(lower, "base_"):
		if ext == ".png" {
			return KindBaseImage
		}
	case strings.HasPrefix(lower, "asset_"):
		return KindAsset
	}
	return KindUnknown
}

// IsAssetCategory reports whether a media subfolder is one of the fixed
// asset categories
func IsAssetCategory(name string) bool {
	for _, c := range AssetCategories {
		if c == name {
			return true
		}
	}
	return false
}

// IsPreviewThumbnail reports whether an asset file is a 3D preview
// thumbnail, which never needs an asset row
func IsPreviewThumbnail(name string) bool {
	return strings.Contains(strings.ToLower(path.Base(name)), "thumbnail")
}

// ThumbnailName returns the thumbnail file name paired with a video
func ThumbnailName(video string) string {
	return strings.TrimSuffix(video, path.Ext(video)) + ".png"
}

// stem returns the name without its extension, lower-cased
func stem(name string) string {
	lower := strings.ToLower(name)
	return strings.TrimSuffix(lower, path.Ext(lower))
}
