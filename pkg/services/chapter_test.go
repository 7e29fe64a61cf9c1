package services

import (
	"path/filepath"
	"testing"

	"github.com/kerbaras/comicdl/pkg/config"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseConfig(t *testing.T, root, extra string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("[paths]\nsave_root = \"" + filepath.ToSlash(root) + "\"\n" + extra))
	require.NoError(t, err)
	return cfg
}

func TestNewChapterDefaultTitle(t *testing.T) {
	root := t.TempDir()
	cfg := parseConfig(t, root, "[download]\noutput_format = \"cbz\"\nembed_metadata = true\n")
	comic := data.Comic{ID: "26470", Title: "漫画: 副题", Author: "作者"}
	ep := data.Episode{ID: "1001", ShortTitle: "1", Title: "开始", Ord: 1}

	ch := NewChapter(1, ep, comic, cfg, nil)
	assert.Equal(t, "第1话 开始", ch.Title)
	assert.Equal(t, 1, ch.Index)
	assert.Equal(t, "1001", ch.ID)
	assert.Equal(t, "26470", ch.ComicID)
	assert.Equal(t, data.FormatCBZ, ch.Format)
	assert.True(t, ch.EmbedMetadata)
	assert.True(t, ch.Available())
	assert.Equal(t, filepath.Join(root, "漫画： 副题"), ch.SaveRoot)
	assert.Equal(t, filepath.Join(root, "漫画： 副题", "第1话 开始.cbz"), ch.ArtifactPath())
}

func TestNewChapterRenameRule(t *testing.T) {
	cfg := parseConfig(t, t.TempDir(), "[download]\nrename_rule = \"3idx&short\"\n")
	rec := &recorder{}

	ch := NewChapter(7, data.Episode{ID: "7", ShortTitle: "测试", Ord: 7}, data.Comic{Title: "c"}, cfg, rec)
	assert.Equal(t, "007 测试", ch.Title)
	assert.Zero(t, rec.count(data.EventWarning))
}

func TestNewChapterSanitizesTitles(t *testing.T) {
	cfg := parseConfig(t, t.TempDir(), "[download]\nrename_rule = \"short&long\"\n")

	ch := NewChapter(2, data.Episode{ID: "2", ShortTitle: "第2话", Title: "第2话 a/b?", Ord: 2}, data.Comic{Title: "c"}, cfg, nil)
	assert.Equal(t, "第2话 a／b？", ch.Title)
	assert.NotContains(t, ch.Title, "/")
}

func TestNewChapterRuleFailureKeepsDefault(t *testing.T) {
	cfg := parseConfig(t, t.TempDir(), "[download]\nrename_rule = \"3ord&short\"\n")
	rec := &recorder{}

	ch := NewChapter(1, data.Episode{ID: "1", ShortTitle: "1", Title: "开始", Ord: -1}, data.Comic{Title: "c"}, cfg, rec)
	assert.Equal(t, "第1话 开始", ch.Title)
	assert.Equal(t, 1, rec.count(data.EventWarning))
}

func TestNewChapterLocked(t *testing.T) {
	cfg := parseConfig(t, t.TempDir(), "")
	ch := NewChapter(1, data.Episode{ID: "1", ShortTitle: "1", Locked: true}, data.Comic{Title: "c", SaveRoot: "/custom"}, cfg, nil)
	assert.False(t, ch.Available())
	assert.Equal(t, "/custom", ch.SaveRoot)
	assert.Equal(t, data.FormatFolder, ch.Format)
}
