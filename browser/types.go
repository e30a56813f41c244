package browser

// Hierarchy places an element within the DOM tree of its frame.
type Hierarchy struct {
	Depth                    int    `json:"depth"`
	SiblingIndex             int    `json:"siblingIndex"`
	TotalSiblings            int    `json:"totalSiblings"`
	ChildrenCount            int    `json:"childrenCount"`
	InteractiveChildrenCount int    `json:"interactiveChildrenCount"`
	SemanticRole             string `json:"semanticRole"`
}

// Rect is an element bounding box in page coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FrameStats summarizes iframe traversal during annotation.
type FrameStats struct {
	TotalFrames      int `json:"totalFrames"`
	AccessibleFrames int `json:"accessibleFrames"`
	MaxDepth         int `json:"maxDepth"`
}

// Element is one interactive element found by the annotation script. The
// field names mirror the JSON the script returns, so an Observation can be
// decoded straight out of the page.
type Element struct {
	X                    float64    `json:"x"`
	Y                    float64    `json:"y"`
	Text                 string     `json:"text"`
	Type                 string     `json:"type"`
	AriaLabel            string     `json:"ariaLabel"`
	IsCaptcha            bool       `json:"isCaptcha"`
	ClassName            string     `json:"className"`
	ElementID            string     `json:"elementId"`
	Selector             string     `json:"selector"`
	Hierarchy            *Hierarchy `json:"hierarchy,omitempty"`
	FrameContext         string     `json:"frameContext"`
	ViewportPosition     string     `json:"viewportPosition"`
	DistanceFromViewport float64    `json:"distanceFromViewport"`
	GlobalIndex          int        `json:"globalIndex"`
	BoundingBox          Rect       `json:"boundingBox"`
}

// Label returns the element text the way prompts render it: the aria label
// when present, otherwise the inner text capped at 100 characters.
func (e Element) Label() string {
	if t := e.AriaLabel; t != "" && !isBlank(t) {
		return t
	}
	r := []rune(e.Text)
	if len(r) > 100 {
		return string(r[:100]) + "..."
	}
	return e.Text
}

// Tab describes one open page in the session.
type Tab struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// Observation is a fresh snapshot of the active tab: a screenshot, the
// interactive elements the annotation script labeled, and tab metadata.
// Markdown is empty for healthy HTML pages; it carries extracted text for
// PDFs and a short explanation when the snapshot is degraded.
type Observation struct {
	Screenshot         string
	Elements           []Element
	Markdown           string
	Tabs               []Tab
	ViewportCategories map[string]int
	FrameStats         FrameStats
	TotalElements      int
	URL                string
	Title              string
}

// markResult is the raw payload of the in-page markPage() call.
type markResult struct {
	Coordinates        []Element            `json:"coordinates"`
	ViewportCategories map[string][]Element `json:"viewportCategories"`
	FrameStats         FrameStats           `json:"frameStats"`
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
