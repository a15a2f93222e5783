package imagegen

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

type labels struct {
	prompt, revised, negative, style, resolution string
}

var (
	labelsZH = labels{
		prompt:     "提示词",
		revised:    "扩写后的提示词",
		negative:   "反向提示词",
		style:      "风格",
		resolution: "分辨率",
	}
	labelsEN = labels{
		prompt:     "Prompt",
		revised:    "Revised prompt",
		negative:   "Negative prompt",
		style:      "Style",
		resolution: "Resolution",
	}
)

func labelsFor(locale language.Tag) labels {
	if base, _ := locale.Base(); base.String() == "en" {
		return labelsEN
	}
	return labelsZH
}

// BuildMarkdown renders res as the chat reply: the first image followed by
// the prompt, the revised prompt when it differs, the negative prompt and
// style when set, and the resolution used.
func BuildMarkdown(res *Result, locale language.Tag) string {
	if res == nil || len(res.ImageURLs) == 0 {
		return ""
	}
	l := labelsFor(locale)
	prompt := res.Request.Prompt
	lines := []string{
		fmt.Sprintf("![Generated Image](%s)", res.ImageURLs[0]),
		fmt.Sprintf("*%s: %s*", l.prompt, prompt),
	}
	if res.RevisedPrompt != "" && res.RevisedPrompt != prompt {
		lines = append(lines, fmt.Sprintf("*%s: %s*", l.revised, res.RevisedPrompt))
	}
	if neg := res.Request.NegativePrompt; neg != "" {
		lines = append(lines, fmt.Sprintf("*%s: %s*", l.negative, neg))
	}
	if style := res.Request.Style; style != "" {
		lines = append(lines, fmt.Sprintf("*%s: %s*", l.style, style))
	}
	lines = append(lines, fmt.Sprintf("*%s: %s*", l.resolution, res.Request.Resolution))
	return strings.Join(lines, "\n")
}
