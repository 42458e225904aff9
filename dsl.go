package costar

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Data source kinds a widget document can declare.
const (
	SourceHTTP        = "http"
	SourceLocalTime   = "local_time"
	SourceADSBNearest = "adsb_nearest"
)

// RoundUnset marks a FormatSpec with no explicit rounding.
const RoundUnset = -100

// Node types. Unknown types in a document are skipped at parse time.
type NodeType int

const (
	NodeLabel NodeType = iota
	NodeValueBox
	NodeProgress
	NodeSparkline
	NodeArc
	NodeLine
	NodeIcon
	NodeMoonPhase
)

// Text overflow behavior for labels.
type Overflow int

const (
	OverflowClip Overflow = iota
	OverflowEllipsis
)

// HAlign and VAlign position text relative to a node's anchor.
type HAlign int

const (
	AlignLeft HAlign = iota
	AlignCenter
	AlignRight
)

type VAlign int

const (
	AlignTop VAlign = iota
	AlignMiddle
	AlignBottom
	AlignBaseline
)

// FormatSpec controls how a resolved field value is rendered.
type FormatSpec struct {
	RoundDigits int // RoundUnset when the document does not specify
	Prefix      string
	Suffix      string
	Unit        string
	Locale      string
	Tz          string
	TimeFormat  string
}

// DefaultFormatSpec returns the format applied when a field declares none.
func DefaultFormatSpec() FormatSpec {
	return FormatSpec{
		RoundDigits: RoundUnset,
		Locale:      "en-US",
		TimeFormat:  "%Y-%m-%d %H:%M",
	}
}

// FieldSpec binds a value key to a JSON path and an output format.
type FieldSpec struct {
	Path   string
	Format FormatSpec
}

// Node is one drawable element of a widget document.
type Node struct {
	Type       NodeType
	X, Y       int
	W, H       int
	X2, Y2     int
	Font       int
	Color      RGB565
	Bg         RGB565
	Text       string
	Key        string
	Path       string
	AngleExpr  string
	Align      HAlign
	VAlign     VAlign
	Wrap       bool
	LineHeight int
	MaxLines   int
	Overflow   Overflow
	Min, Max   float64
	StartDeg   float64
	EndDeg     float64
	Radius     int
	Length     int
	Thickness  int
}

func defaultNode() Node {
	return Node{
		W:         100,
		H:         32,
		Font:      2,
		Color:     ColorWhite,
		Bg:        0x0000,
		Min:       0,
		Max:       100,
		StartDeg:  0,
		EndDeg:    360,
		Thickness: 1,
	}
}

// TouchAction describes what a touch region or tap does.
type TouchAction struct {
	Action      string // "modal" or "http"
	ModalID     string
	DismissMs   int
	URL         string
	Method      string
	Body        string
	ContentType string
	Headers     map[string]string
}

// TouchRegion is a hit-testable rectangle inside the widget.
type TouchRegion struct {
	X, Y, W, H int
	OnTouch    TouchAction
}

// Contains reports whether the widget-relative point lies in the region.
func (r TouchRegion) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Modal is an overlay panel opened by a touch region.
type Modal struct {
	ID         string
	Title      string
	Text       string
	X, Y, W, H int // x/y of -1 mean centered
	Font       int
	LineHeight int
	MaxLines   int
	Bg         RGB565
	Border     RGB565
	TitleColor RGB565
	TextColor  RGB565
}

// Document is a parsed widget description.
type Document struct {
	Title        string
	Source       string
	URL          string
	Headers      map[string]string
	Debug        bool
	PollMs       int
	HTTPMaxBytes int
	Fields       map[string]FieldSpec
	Nodes        []Node
	TouchRegions []TouchRegion
	Modals       []Modal
	// RetainSource is set when any node reads a raw JSON path directly,
	// so the fetched document must be kept after field extraction.
	RetainSource bool
}

const (
	defaultPollMs   = 30000
	maxRepeatCount  = 512
	httpMaxBytesDef = 16384
	httpMaxBytesMin = 1024
	httpMaxBytesMax = 65536
)

var errUnsupportedVersion = errors.New("unsupported dsl version")

// ParseDocumentFile reads and parses a widget document from disk.
func ParseDocumentFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dsl file missing: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument parses a widget document. Unknown node types are skipped;
// an empty node list yields the fallback label so the widget always has
// something to draw.
func ParseDocument(data []byte) (*Document, error) {
	root, err := ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("dsl parse failed: %w", err)
	}

	if v, ok := root.Resolve("version"); ok {
		if f, ok := v.Float(); ok && int(f) != 1 {
			return nil, errUnsupportedVersion
		}
	}

	doc := &Document{
		Title:        "DSL",
		Source:       SourceHTTP,
		PollMs:       defaultPollMs,
		HTTPMaxBytes: httpMaxBytesDef,
		Headers:      map[string]string{},
		Fields:       map[string]FieldSpec{},
	}

	if v, ok := root.Resolve("debug"); ok {
		if b, ok := parseBoolValue(v); ok {
			doc.Debug = b
		}
	}

	if dataObj, ok := root.Field("data"); ok {
		parseDataSection(dataObj, doc)
	}
	if uiObj, ok := root.Field("ui"); ok {
		parseUISection(uiObj, doc)
	}

	if doc.Source == SourceHTTP && doc.URL == "" {
		return nil, errors.New("dsl missing data.url for http source")
	}

	if len(doc.Nodes) == 0 {
		fallback := defaultNode()
		fallback.Type = NodeLabel
		fallback.Text = "DSL widget loaded"
		fallback.X = 8
		fallback.Y = 30
		doc.Nodes = append(doc.Nodes, fallback)
	}

	for _, n := range doc.Nodes {
		if n.Path != "" {
			doc.RetainSource = true
			break
		}
	}

	return doc, nil
}

func parseDataSection(data Value, doc *Document) {
	if v, ok := data.Field("source"); ok && v.IsString() {
		doc.Source = v.Text()
	}
	if v, ok := data.Field("url"); ok && v.IsString() {
		doc.URL = v.Text()
	}
	if v, ok := data.Field("debug"); ok {
		if b, ok := parseBoolValue(v); ok {
			doc.Debug = b
		}
	}
	if v, ok := data.Field("poll_ms"); ok {
		if f, ok := v.Float(); ok && f > 0 {
			doc.PollMs = int(f)
		}
	}
	if v, ok := data.Field("http_max_bytes"); ok {
		if f, ok := v.Float(); ok {
			doc.HTTPMaxBytes = clampInt(int(f), httpMaxBytesMin, httpMaxBytesMax)
		}
	}

	if headers, ok := data.Field("headers"); ok {
		for key, raw := range headers.Object() {
			val := Value{raw: raw}.Text()
			if key != "" && val != "" {
				doc.Headers[key] = val
			}
		}
	}

	if fields, ok := data.Field("fields"); ok {
		for key, raw := range fields.Object() {
			spec := parseFieldSpec(Value{raw: raw})
			if spec.Path != "" {
				doc.Fields[key] = spec
			}
		}
	}
}

func parseFieldSpec(v Value) FieldSpec {
	spec := FieldSpec{Format: DefaultFormatSpec()}
	if v.IsString() {
		spec.Path = v.Text()
		return spec
	}
	if !v.IsObject() {
		return spec
	}
	if p, ok := v.Field("path"); ok {
		spec.Path = p.Text()
	}
	fmtObj, ok := v.Field("format")
	if !ok {
		return spec
	}
	if r, ok := fmtObj.Field("round"); ok {
		if f, ok := r.Float(); ok {
			spec.Format.RoundDigits = int(f)
		}
	} else if r, ok := fmtObj.Field("round_digits"); ok {
		if f, ok := r.Float(); ok {
			spec.Format.RoundDigits = int(f)
		}
	}
	spec.Format.Prefix = fieldText(fmtObj, "prefix", "")
	spec.Format.Suffix = fieldText(fmtObj, "suffix", "")
	spec.Format.Unit = fieldText(fmtObj, "unit", "")
	spec.Format.Locale = fieldText(fmtObj, "locale", "en-US")
	spec.Format.Tz = fieldText(fmtObj, "tz", "")
	spec.Format.TimeFormat = fieldText(fmtObj, "time_format", "")
	if spec.Format.TimeFormat == "" {
		spec.Format.TimeFormat = fieldText(fmtObj, "timeFormat", "%Y-%m-%d %H:%M")
	}
	return spec
}

func fieldText(v Value, name, fallback string) string {
	if f, ok := v.Field(name); ok && !f.IsNull() {
		return f.Text()
	}
	return fallback
}

func parseUISection(ui Value, doc *Document) {
	if v, ok := ui.Field("title"); ok && v.IsString() {
		doc.Title = v.Text()
	}
	if v, ok := ui.Field("debug"); ok {
		if b, ok := parseBoolValue(v); ok {
			doc.Debug = b
		}
	}

	// legacy flat label list
	if labels, ok := ui.Field("labels"); ok {
		for _, raw := range labels.Array() {
			lv := Value{raw: raw}
			n := defaultNode()
			n.Type = NodeLabel
			n.X = intField(lv, "x", nil, 0)
			n.Y = intField(lv, "y", nil, 0)
			n.Font = intField(lv, "font", nil, 2)
			n.Text = fieldText(lv, "text", "")
			n.Color = parseColorOr(fieldText(lv, "color", "#FFFFFF"), ColorWhite)
			if n.Text != "" {
				doc.Nodes = append(doc.Nodes, n)
			}
		}
	}

	if nodes, ok := ui.Field("nodes"); ok {
		applyNodes(nodes, nil, doc)
	}

	if modals, ok := ui.Field("modals"); ok {
		for _, raw := range modals.Array() {
			if m, ok := parseModal(Value{raw: raw}); ok {
				doc.Modals = append(doc.Modals, m)
			}
		}
	}

	if regions, ok := ui.Field("touch_regions"); ok {
		for _, raw := range regions.Array() {
			if r, ok := parseTouchRegion(Value{raw: raw}); ok {
				doc.TouchRegions = append(doc.TouchRegions, r)
			}
		}
	}
}

// repeatVars is a linked chain of loop variables so nested repeats shadow
// their parents.
type repeatVars struct {
	parent *repeatVars
	name   string
	value  float64
}

func (rv *repeatVars) lookup(name string) (float64, bool) {
	for cur := rv; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.value, true
		}
	}
	return 0, false
}

func applyNodes(nodes Value, vars *repeatVars, doc *Document) {
	for _, raw := range nodes.Array() {
		nodeObj := Value{raw: raw}
		typ := fieldText(nodeObj, "type", "label")
		if typ == "repeat" {
			applyRepeat(nodeObj, vars, doc)
			continue
		}
		applyNode(nodeObj, vars, doc)
	}
}

func applyRepeat(nodeObj Value, vars *repeatVars, doc *Document) {
	count := intField(nodeObj, "count", vars, 0)
	if v, ok := nodeObj.Field("times"); ok {
		if f, ok := v.Float(); ok {
			count = int(f)
		}
	}
	if count <= 0 {
		return
	}
	if count > maxRepeatCount {
		count = maxRepeatCount
	}
	start := floatField(nodeObj, "start", vars, 0)
	step := floatField(nodeObj, "step", vars, 1)
	varName := fieldText(nodeObj, "var", "i")

	children, hasChildren := nodeObj.Field("nodes")
	single, hasSingle := nodeObj.Field("node")

	for i := 0; i < count; i++ {
		local := &repeatVars{parent: vars, name: varName, value: start + float64(i)*step}
		if hasChildren {
			applyNodes(children, local, doc)
		} else if hasSingle {
			applyNode(single, local, doc)
		}
	}
}

func applyNode(nodeObj Value, vars *repeatVars, doc *Document) {
	n := defaultNode()

	switch fieldText(nodeObj, "type", "label") {
	case "label":
		n.Type = NodeLabel
	case "value_box":
		n.Type = NodeValueBox
	case "progress":
		n.Type = NodeProgress
	case "sparkline":
		n.Type = NodeSparkline
	case "arc", "circle":
		n.Type = NodeArc
	case "line", "hand":
		n.Type = NodeLine
	case "icon":
		n.Type = NodeIcon
	case "moon_phase":
		n.Type = NodeMoonPhase
	default:
		return
	}

	n.X = intField(nodeObj, "x", vars, n.X)
	n.Y = intField(nodeObj, "y", vars, n.Y)
	n.W = intField(nodeObj, "w", vars, n.W)
	n.H = intField(nodeObj, "h", vars, n.H)
	n.X2 = intField(nodeObj, "x2", vars, n.X2)
	n.Y2 = intField(nodeObj, "y2", vars, n.Y2)
	n.Radius = intField(nodeObj, "r", vars, n.Radius)
	n.Length = intField(nodeObj, "length", vars, n.Length)
	n.Thickness = intField(nodeObj, "thickness", vars, n.Thickness)
	n.Font = intField(nodeObj, "font", vars, n.Font)

	n.Text = substituteRepeatVars(fieldText(nodeObj, "text", ""), vars)
	n.Key = substituteRepeatVars(fieldText(nodeObj, "key", ""), vars)
	path := fieldText(nodeObj, "path", "")
	if path == "" {
		path = fieldText(nodeObj, "icon", "")
	}
	n.Path = substituteRepeatVars(path, vars)
	angleExpr := substituteRepeatVars(fieldText(nodeObj, "angle_expr", ""), vars)
	n.AngleExpr = substituteExprVars(angleExpr, vars)

	n.Align, n.VAlign = parseDatum(
		strings.ToLower(fieldText(nodeObj, "align", "")),
		strings.ToLower(fieldText(nodeObj, "valign", "")),
	)
	if v, ok := nodeObj.Field("wrap"); ok {
		if b, ok := parseBoolValue(v); ok {
			n.Wrap = b
		}
	}
	n.LineHeight = intField(nodeObj, "line_height", vars, 0)
	n.MaxLines = intField(nodeObj, "max_lines", vars, 0)
	if strings.EqualFold(fieldText(nodeObj, "overflow", ""), "ellipsis") {
		n.Overflow = OverflowEllipsis
	}

	n.Min = floatField(nodeObj, "min", vars, n.Min)
	n.Max = floatField(nodeObj, "max", vars, n.Max)
	n.StartDeg = floatField(nodeObj, "start_deg", vars, n.StartDeg)
	n.EndDeg = floatField(nodeObj, "end_deg", vars, n.EndDeg)

	n.Color = parseColorOr(fieldText(nodeObj, "color", "#FFFFFF"), ColorWhite)
	n.Bg = parseColorOr(fieldText(nodeObj, "bg", "#101010"), ColorBlack)

	doc.Nodes = append(doc.Nodes, n)
}

func parseDatum(align, valign string) (HAlign, VAlign) {
	h := AlignLeft
	switch align {
	case "center":
		h = AlignCenter
	case "right":
		h = AlignRight
	}
	v := AlignTop
	switch valign {
	case "middle":
		v = AlignMiddle
	case "bottom":
		v = AlignBottom
	case "baseline":
		v = AlignBaseline
	}
	return h, v
}

func parseModal(v Value) (Modal, bool) {
	m := Modal{
		ID:         fieldText(v, "id", ""),
		Title:      fieldText(v, "title", ""),
		Text:       fieldText(v, "text", ""),
		X:          intField(v, "x", nil, -1),
		Y:          intField(v, "y", nil, -1),
		W:          intField(v, "w", nil, -1),
		H:          intField(v, "h", nil, -1),
		Font:       intField(v, "font", nil, 2),
		LineHeight: intField(v, "line_height", nil, 0),
		MaxLines:   intField(v, "max_lines", nil, 0),
		Bg:         parseColorOr(fieldText(v, "bg", "#101820"), 0x10A2),
		Border:     parseColorOr(fieldText(v, "border", "#4A90E2"), 0x4C9C),
		TitleColor: parseColorOr(fieldText(v, "title_color", "#FFFFFF"), ColorWhite),
		TextColor:  parseColorOr(fieldText(v, "text_color", "#D8E6F5"), 0xDF3E),
	}
	if m.ID == "" || m.W <= 0 || m.H <= 0 {
		return Modal{}, false
	}
	return m, true
}

func parseTouchRegion(v Value) (TouchRegion, bool) {
	r := TouchRegion{
		X: intField(v, "x", nil, 0),
		Y: intField(v, "y", nil, 0),
		W: intField(v, "w", nil, 0),
		H: intField(v, "h", nil, 0),
	}
	if r.W <= 0 || r.H <= 0 {
		return TouchRegion{}, false
	}
	onTouch, ok := v.Field("on_touch")
	if !ok {
		return TouchRegion{}, false
	}
	action := strings.ToLower(fieldText(onTouch, "action", ""))
	switch action {
	case "modal":
		r.OnTouch.Action = "modal"
		r.OnTouch.ModalID = fieldText(onTouch, "modal_id", "")
		r.OnTouch.DismissMs = intField(onTouch, "dismiss_ms", nil, 0)
		if r.OnTouch.ModalID == "" {
			return TouchRegion{}, false
		}
	case "http":
		r.OnTouch.Action = "http"
		r.OnTouch.URL = fieldText(onTouch, "url", "")
		r.OnTouch.Method = fieldText(onTouch, "method", "POST")
		r.OnTouch.Body = fieldText(onTouch, "body", "")
		r.OnTouch.ContentType = fieldText(onTouch, "content_type", "application/json")
		if headers, ok := onTouch.Field("headers"); ok {
			for key, raw := range headers.Object() {
				val := strings.TrimSpace(Value{raw: raw}.Text())
				key = strings.TrimSpace(key)
				if key != "" && val != "" {
					if r.OnTouch.Headers == nil {
						r.OnTouch.Headers = map[string]string{}
					}
					r.OnTouch.Headers[key] = val
				}
			}
		}
		if r.OnTouch.URL == "" {
			return TouchRegion{}, false
		}
	default:
		return TouchRegion{}, false
	}
	return r, true
}

// parseBoolValue accepts JSON booleans, the strings 1/true/yes/on and
// 0/false/no/off, and numbers (nonzero = true).
func parseBoolValue(v Value) (bool, bool) {
	if b, ok := v.Bool(); ok {
		return b, true
	}
	if v.IsString() {
		switch strings.ToLower(v.Text()) {
		case "1", "true", "yes", "on":
			return true, true
		case "0", "false", "no", "off":
			return false, true
		}
		return false, false
	}
	if f, ok := v.Float(); ok {
		return f > 1e-4 || f < -1e-4, true
	}
	return false, false
}

// floatField reads a numeric node attribute. Strings are evaluated as
// expressions with the repeat variables in scope, falling back to a
// leading-number parse.
func floatField(obj Value, name string, vars *repeatVars, fallback float64) float64 {
	v, ok := obj.Field(name)
	if !ok || v.IsNull() {
		return fallback
	}
	if f, ok := v.Float(); ok {
		return f
	}
	if v.IsString() {
		text := substituteRepeatVars(v.Text(), vars)
		if f, ok := EvalExpression(text, func(name string) (float64, bool) {
			return vars.lookup(name)
		}); ok {
			return f
		}
		if f, ok := parseLeadingNumber(text); ok {
			return f
		}
	}
	return fallback
}

func intField(obj Value, name string, vars *repeatVars, fallback int) int {
	f := floatField(obj, name, vars, float64(fallback))
	if f >= 0 {
		return int(f + 0.5)
	}
	return int(f - 0.5)
}

// parseLeadingNumber parses the longest numeric prefix, matching the
// permissive behavior of the firmware's string-to-float conversion.
func parseLeadingNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	hasDigit := false
	end := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			hasDigit = true
			end = i + 1
			continue
		}
		if c == '.' || (i == 0 && (c == '-' || c == '+')) {
			end = i + 1
			continue
		}
		break
	}
	if !hasDigit {
		return 0, false
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// substituteRepeatVars replaces {{var}} references to repeat-loop
// variables. Unknown tokens are left intact for the runtime binder.
func substituteRepeatVars(input string, vars *repeatVars) string {
	if vars == nil || !strings.Contains(input, "{{") {
		return input
	}
	var out strings.Builder
	out.Grow(len(input))
	pos := 0
	for {
		start := strings.Index(input[pos:], "{{")
		if start < 0 {
			out.WriteString(input[pos:])
			break
		}
		start += pos
		out.WriteString(input[pos:start])
		end := strings.Index(input[start+2:], "}}")
		if end < 0 {
			out.WriteString(input[start:])
			break
		}
		end += start + 2
		key := input[start+2 : end]
		if v, ok := vars.lookup(key); ok {
			out.WriteString(formatVarValue(v))
		} else {
			out.WriteString(input[start : end+2])
		}
		pos = end + 2
	}
	return out.String()
}

// substituteExprVars replaces bare identifiers in an expression with the
// values of repeat variables, leaving runtime identifiers for later.
func substituteExprVars(input string, vars *repeatVars) string {
	if vars == nil {
		return input
	}
	var out strings.Builder
	out.Grow(len(input))
	i := 0
	for i < len(input) {
		c := input[i]
		if !isIdentStart(c) {
			out.WriteByte(c)
			i++
			continue
		}
		start := i
		for i < len(input) && isIdentRune(input[i]) {
			i++
		}
		ident := input[start:i]
		if v, ok := vars.lookup(ident); ok {
			out.WriteString(formatVarValue(v))
		} else {
			out.WriteString(ident)
		}
	}
	return out.String()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
