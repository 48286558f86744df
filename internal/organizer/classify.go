package organizer

import (
	"path/filepath"
	"strings"

	"assetsync/internal/catalog"
	"assetsync/internal/targets"
)

var extensionCategories = map[string]catalog.Category{
	".png":        catalog.CategoryImage,
	".jpg":        catalog.CategoryImage,
	".jpeg":       catalog.CategoryImage,
	".tga":        catalog.CategoryImage,
	".bmp":        catalog.CategoryImage,
	".webp":       catalog.CategoryImage,
	".wav":        catalog.CategoryAudio,
	".ogg":        catalog.CategoryAudio,
	".mp3":        catalog.CategoryAudio,
	".m4a":        catalog.CategoryAudio,
	".fsb":        catalog.CategoryAudio,
	".acb":        catalog.CategoryAudio,
	".obj":        catalog.CategoryModel,
	".fbx":        catalog.CategoryModel,
	".prefab":     catalog.CategoryModel,
	".mesh":       catalog.CategoryModel,
	".mat":        catalog.CategoryModel,
	".anim":       catalog.CategoryModel,
	".controller": catalog.CategoryModel,
	".skel":       catalog.CategoryModel,
}

var typeDirCategories = map[string]catalog.Category{
	"texture2d":     catalog.CategoryImage,
	"sprite":        catalog.CategoryImage,
	"audioclip":     catalog.CategoryAudio,
	"mesh":          catalog.CategoryModel,
	"material":      catalog.CategoryModel,
	"shader":        catalog.CategoryModel,
	"animator":      catalog.CategoryModel,
	"animationclip": catalog.CategoryModel,
}

// Classify assigns an exported file to a category. Rules apply in order: file
// extension, then any exporter type directory in the path, then the bundle
// name prefix. Anything else is unclassified.
func Classify(path, bundle string) catalog.Category {
	if category, ok := extensionCategories[strings.ToLower(filepath.Ext(path))]; ok {
		return category
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if category, ok := typeDirCategories[strings.ToLower(part)]; ok {
			return category
		}
	}
	return targets.CategoryForBundle(bundle)
}
