package data

import "time"

// Repository is a network endpoint hosting a manifest and installable
// extensions. Identity is the ID, derived from the normalized base URL.
type Repository struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl"`
	Icon    string `json:"icon,omitempty"`
}

// Manifest is the repository-level listing of installable extensions,
// fetched from <baseUrl>/versioning.json.
type Manifest struct {
	Name      string          `json:"name,omitempty"`
	BuildTime string          `json:"buildTime"`
	Sources   []ManifestEntry `json:"sources"`
	BuiltWith BuildInfo       `json:"builtWith"`
}

// BuildInfo records the toolchain a repository was built with.
type BuildInfo struct {
	Toolchain string `json:"toolchain"`
	Types     string `json:"types"`
}

// ManifestEntry describes one extension published by a repository.
type ManifestEntry struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Author         string   `json:"author"`
	Desc           string   `json:"desc"`
	Version        string   `json:"version"`
	Icon           string   `json:"icon"`
	Tags           []string `json:"tags"`
	ContentRating  string   `json:"contentRating"`
	WebsiteBaseURL string   `json:"websiteBaseURL"`
	Intents        int      `json:"intents"`
}

// InstalledExtension is a manifest entry bound to its origin repository
// together with the downloaded executable payload.
type InstalledExtension struct {
	ManifestEntry
	RepoID      string `json:"repoId"`
	RepoBaseURL string `json:"repoBaseUrl"`
	Payload     string `json:"payload"`
}

// SourceManga is the normalized listing representation an extension returns
// for search results and home sections.
type SourceManga struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Image    string `json:"image"`
	Subtitle string `json:"subtitle,omitempty"`
}

// MangaDetails carries the full metadata for one title.
type MangaDetails struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Image  string   `json:"image"`
	Tags   []string `json:"tags"`
	Status string   `json:"status"`
	Author string   `json:"author"`
	Desc   string   `json:"desc"`
}

// HomeSection is one shelf of an extension's landing view.
type HomeSection struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Type              string        `json:"type"`
	Items             []SourceManga `json:"items"`
	ContainsMoreItems bool          `json:"containsMoreItems"`
}

// Tag is a browsable genre/category exposed by an extension.
type Tag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Chapter is one chapter of a manga. Chapter lists returned by the runtime
/// bridge are always sorted newest-first: lower index = newer.
type Chapter struct {
	ID       string    `json:"id"`
	MangaID  string    `json:"mangaId"`
	Name     string    `json:"name"`
	ChapNum  float64   `json:"chapNum"`
	Volume   float64   `json:"volume"`
	LangCode string    `json:"langCode"`
	Time     time.Time `json:"time"`
}

// Page is a single page of a chapter. ImageURL is either an ordinary URL or
// a drm:// URL that must be decrypted by the owning extension before use.
type Page struct {
	ChapterID  string `json:"chapterId"`
	PageNumber int    `json:"pageNumber"`
	ImageURL   string `json:"imageUrl"`
}

// PreloadedPage is a Page the preload pipeline has worked on. Preloaded true
// implies ResolvedURL is renderable without further network or DRM work.
type PreloadedPage struct {
	Page
	ResolvedURL string `json:"resolvedUrl"`
	Preloaded   bool   `json:"preloaded"`
	Loading     bool   `json:"loading,omitempty"`
}

// JobStatus is the closed set of download job states.
type JobStatus string

const (
	JobQueued      JobStatus = "queued"
	JobDownloading JobStatus = "downloading"
	JobPaused      JobStatus = "paused"
	JobFailed      JobStatus = "failed"
)

// Valid reports whether s is one of the known job states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobDownloading, JobPaused, JobFailed:
		return true
	}
	return false
}

// DownloadJob is a queued request to persist one chapter locally.
type DownloadJob struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"sourceId"`
	MangaID    string    `json:"mangaId"`
	ChapterID  string    `json:"chapterId"`
	MangaTitle string    `json:"mangaTitle"`
	MangaCover string    `json:"mangaCover"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Total      int       `json:"total"`
	Error      string    `json:"error,omitempty"`
	QueuedAt   time.Time `json:"queuedAt"`
}

// DownloadedChapter is the persisted record of a chapter stored for offline
// reading. Pages are absolute paths to the local image files in page order.
type DownloadedChapter struct {
	ChapterID    string    `json:"chapterId"`
	MangaID      string    `json:"mangaId"`
	SourceID     string    `json:"sourceId"`
	Pages        []string  `json:"pages"`
	Size         int64     `json:"size"`
	DownloadedAt time.Time `json:"downloadedAt"`
}
