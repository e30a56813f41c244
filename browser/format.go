package browser

import (
	"fmt"
	"sort"
	"strings"
)

// viewportOrder fixes the section order when rendering elements grouped by
// their position relative to the viewport.
var viewportOrder = []string{
	"in-viewport",
	"above-viewport",
	"below-viewport",
	"left-of-viewport",
	"right-of-viewport",
}

var viewportLabels = map[string]string{
	"in-viewport":       "🟢 CURRENT VIEWPORT",
	"above-viewport":    "⬆️  ABOVE VIEWPORT",
	"below-viewport":    "⬇️  BELOW VIEWPORT",
	"left-of-viewport":  "⬅️  LEFT OF VIEWPORT",
	"right-of-viewport": "➡️  RIGHT OF VIEWPORT",
}

type indexedElement struct {
	index int
	el    Element
}

// FormatElements renders labeled elements as the text block the LLM reads:
// grouped by viewport position, then by frame, indented by DOM depth. Only
// in-viewport elements keep their numeric ids; everything else shows N/A
// because ids are only valid for what the screenshot shows.
func FormatElements(elements []Element) string {
	if len(elements) == 0 {
		return "No interactive elements found on this page."
	}

	groups := make(map[string][]indexedElement, len(viewportOrder))
	for i, el := range elements {
		pos := el.ViewportPosition
		if _, ok := viewportLabels[pos]; !ok {
			pos = "in-viewport"
		}
		groups[pos] = append(groups[pos], indexedElement{index: i, el: el})
	}

	var lines []string
	for _, pos := range viewportOrder {
		group := groups[pos]
		if len(group) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("\n%s (%d elements):", viewportLabels[pos], len(group)))

		// Group by frame, preserving first-seen order.
		var frames []string
		byFrame := make(map[string][]indexedElement)
		for _, ie := range group {
			frame := ie.el.FrameContext
			if frame == "" {
				frame = "main"
			}
			if _, seen := byFrame[frame]; !seen {
				frames = append(frames, frame)
			}
			byFrame[frame] = append(byFrame[frame], ie)
		}

		for _, frame := range frames {
			frameIndent := ""
			if frame != "main" {
				lines = append(lines, fmt.Sprintf("\t📦 %s:", frame))
				frameIndent = "\t"
			}
			cluster := byFrame[frame]
			sort.SliceStable(cluster, func(a, b int) bool {
				return hierarchyDepth(cluster[a].el) < hierarchyDepth(cluster[b].el)
			})
			for _, ie := range cluster {
				label := fmt.Sprintf("%d", ie.index)
				if pos != "in-viewport" {
					label = "N/A"
				}
				lines = append(lines, frameIndent+formatElement(label, ie.el, frameIndent))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func hierarchyDepth(el Element) int {
	if el.Hierarchy == nil {
		return 0
	}
	return el.Hierarchy.Depth
}

func formatElement(indexLabel string, el Element, baseIndent string) string {
	text := el.Label()

	captcha := ""
	if el.IsCaptcha {
		captcha = " [CAPTCHA]"
	}
	frameInfo := ""
	if el.FrameContext != "" && el.FrameContext != "main" {
		frameInfo = fmt.Sprintf(" [Frame: %s]", el.FrameContext)
	}

	prefix := ""
	if el.Hierarchy != nil && el.Hierarchy.Depth > 0 {
		level := el.Hierarchy.Depth
		if level > 4 {
			level = 4
		}
		indent := strings.Repeat("\t", level)
		prefix = indent + "└─ "
		baseIndent = indent
	}

	line := fmt.Sprintf(`%sbbox_id: %s (<%s/>%s): "%s"%s`, prefix, indexLabel, el.Type, captcha, text, frameInfo)

	if el.Hierarchy != nil && el.Hierarchy.InteractiveChildrenCount > 0 {
		line += fmt.Sprintf("\n%s\t├─ Contains %d interactive children", baseIndent, el.Hierarchy.InteractiveChildrenCount)
	}
	return line
}

// FormatTabs renders the open-tab overview shown to the LLM when more than
// one tab exists.
func FormatTabs(tabs []Tab, current int) string {
	if len(tabs) == 0 {
		return "Browser Tabs: No tabs available"
	}
	lines := []string{"📑 Browser Tabs:"}
	for _, t := range tabs {
		status := "⚪"
		if t.Active {
			status = "🟢 [CURRENT]"
		}
		lines = append(lines, fmt.Sprintf("  %s Tab [index=%d]: %s", status, t.Index, t.Title))
	}
	lines = append(lines, fmt.Sprintf("\nCurrently viewing Tab %d", current))
	lines = append(lines, "💡 Use list_tabs() to see detailed tab information or switch_tab(index) to change tabs")
	return strings.Join(lines, "\n")
}

// FormatMarkdown wraps extracted page text for inclusion in the prompt.
func FormatMarkdown(markdown string) string {
	return "Page Content (Markdown):\n\n" + markdown
}
