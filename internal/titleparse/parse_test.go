package titleparse_test

import (
	"testing"

	"github.com/ryosa/hibiki/internal/titleparse"
)

func TestEpisode(t *testing.T) {
	cases := []struct {
		title string
		want  int
		ok    bool
	}{
		{"[SubsPlease] Tougen Anki - 05 (1080p) [A1B2C3D4].mkv", 5, true},
		{"Show Name S01E12 [720p]", 12, true},
		{"Show Name Episode 3", 3, true},
		{"[Group] Show 08v2 [1080p]", 8, true},
		{"[Group] Show - 012 (720p)", 12, true},
		{"Movie Title (2021) [1080p]", 0, false},
	}
	for _, c := range cases {
		got, ok := titleparse.Episode(c.title)
		if ok != c.ok || got != c.want {
			t.Errorf("Episode(%q) = %d, %v; want %d, %v", c.title, got, ok, c.want, c.ok)
		}
	}
}

func TestSeason(t *testing.T) {
	cases := []struct {
		title string
		want  int
	}{
		{"Show Name S02E05", 2},
		{"Show Name Season 3 Episode 1", 3},
		{"Show Name 2nd Season - 04 (1080p)", 2},
		{"Show Name Second Season - 04", 2},
		{"[Group] Show S3 - 07", 3},
		{"[Group] Show 2 - 07 (720p)", 2},
		{"[Group] Show - 07 (720p)", 1},
	}
	for _, c := range cases {
		if got := titleparse.Season(c.title); got != c.want {
			t.Errorf("Season(%q) = %d; want %d", c.title, got, c.want)
		}
	}
}

func TestGroupAndChecksum(t *testing.T) {
	title := "[SubsPlease] Tougen Anki - 05 (1080p) [A1B2C3D4].mkv"

	group, ok := titleparse.Group(title)
	if !ok || group != "SubsPlease" {
		t.Errorf("Group = %q, %v; want SubsPlease, true", group, ok)
	}

	sum, ok := titleparse.Checksum(title)
	if !ok || sum != "A1B2C3D4" {
		t.Errorf("Checksum = %q, %v; want A1B2C3D4, true", sum, ok)
	}

	if _, ok := titleparse.Group("No Group Here - 01"); ok {
		t.Error("Group should not match a title without a leading bracket")
	}
	// A quality token is bracketed but not 8 hex characters.
	if _, ok := titleparse.Checksum("[Group] Show - 01 [1080p]"); ok {
		t.Error("Checksum should not match a quality token")
	}
}

func TestNameBeforeEpisode(t *testing.T) {
	name := titleparse.NameBeforeEpisode("[SubsPlease] Tougen Anki - 05 (1080p)")
	if titleparse.Normalize(name) != "tougen anki" {
		t.Errorf("normalized name segment = %q; want %q", titleparse.Normalize(name), "tougen anki")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"[SubsPlease] Tougen Anki (1080p)", "tougen anki"},
		{"Re:ZERO -Starting Life-", "re zero starting life"},
		{"  Multiple   Spaces  ", "multiple spaces"},
	}
	for _, c := range cases {
		if got := titleparse.Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q; want %q", c.in, got, c.want)
		}
	}
}

func TestSimilarityScore(t *testing.T) {
	score := titleparse.SimilarityScore("Tondemo Skill", "Tondemo Skill de Isekai Hourou Meshi")
	if score < titleparse.AcceptThreshold {
		t.Errorf("score = %f; want >= %f", score, titleparse.AcceptThreshold)
	}

	score = titleparse.SimilarityScore("Completely Unrelated Title", "Tondemo Skill de Isekai Hourou Meshi")
	if score >= titleparse.AcceptThreshold {
		t.Errorf("score = %f; want < %f", score, titleparse.AcceptThreshold)
	}
}

func TestBestAlternative(t *testing.T) {
	canonical := "Tondemo Skill de Isekai Hourou Meshi"
	best := titleparse.BestAlternative(canonical, []string{
		"Completely Unrelated Title",
		"Tondemo Skill",
		"Tondemo Skill de Isekai",
	})
	// Only the single highest-scoring title is kept.
	if best != "Tondemo Skill de Isekai" {
		t.Errorf("BestAlternative = %q; want %q", best, "Tondemo Skill de Isekai")
	}

	if got := titleparse.BestAlternative(canonical, []string{"Nothing Alike"}); got != "" {
		t.Errorf("BestAlternative = %q; want empty", got)
	}
}
