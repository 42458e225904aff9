package costar

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Renderer paints widget instances into a framebuffer. It owns no
// state beyond the icon cache; a render call is a pure walk over the
// widget's node list.
type Renderer struct {
	FB    Framebuffer
	Icons *IconCache

	now func() time.Time
}

func NewRenderer(fb Framebuffer, icons *IconCache) *Renderer {
	return &Renderer{FB: fb, Icons: icons, now: time.Now}
}

// RenderWidget repaints one widget: panel background, nodes, any open
// modal, and the status dot. The dirty flag clears only here, after a
// complete paint.
func (r *Renderer) RenderWidget(w *WidgetInstance, geo GeoSnapshot, prefs PrefSnapshot) {
	r.FB.FillRect(w.X, w.Y, w.W, w.H, ColorBlack)

	env := w.templateEnv(geo, prefs)
	for i := range w.Doc.Nodes {
		r.renderNode(w, &w.Doc.Nodes[i], env)
	}

	if w.ActiveModal != "" {
		if m := w.FindModal(w.ActiveModal); m != nil {
			r.renderModal(w, m, env)
		}
	}

	dot := ColorRed
	if w.Status == StatusOk {
		dot = ColorGreen
	}
	r.fillCircle(w.X+w.W-6, w.Y+6, 2, dot)

	w.Dirty = false
}

func (r *Renderer) renderNode(w *WidgetInstance, node *Node, env *TemplateEnv) {
	x := w.X + node.X
	y := w.Y + node.Y

	switch node.Type {
	case NodeLabel:
		r.renderLabel(w, node, env, x, y)

	case NodeValueBox:
		r.FB.FillRect(x, y, node.W, node.H, node.Bg)
		r.drawRect(x, y, node.W, node.H, node.Color)
		if node.Text != "" {
			r.drawString(FontByID(1), env.Bind(node.Text), x+4, y+4, node.Color)
		}
		if node.Key != "" {
			r.drawString(FontByID(node.Font), w.Values[node.Key], x+4, y+16, node.Color)
		}

	case NodeProgress:
		r.FB.FillRect(x, y, node.W, node.H, node.Bg)
		r.drawRect(x, y, node.W, node.H, node.Color)

		value, ok := w.NumericVar(node.Key)
		if node.Key == "" || !ok || node.Max <= node.Min {
			return
		}
		ratio := (value - node.Min) / (node.Max - node.Min)
		if ratio < 0 {
			ratio = 0
		}
		if ratio > 1 {
			ratio = 1
		}
		fillW := int(float64(node.W-4) * ratio)
		r.FB.FillRect(x+2, y+2, fillW, node.H-4, node.Color)

		label := fmt.Sprintf("%.1f", value)
		font := FontByID(1)
		r.drawString(font, label,
			x+node.W/2-font.TextWidth(label)/2,
			y+node.H/2-font.LineHeight()/2,
			ColorWhite)

	case NodeSparkline:
		r.renderSparkline(w, node, x, y)

	case NodeArc:
		r.renderArc(node, x, y)

	case NodeLine:
		r.renderLine(w, node, x, y)

	case NodeIcon:
		r.renderIcon(w, node, env, x, y)

	case NodeMoonPhase:
		r.renderMoon(w, node, x, y)
	}
}

func (r *Renderer) renderLabel(w *WidgetInstance, node *Node, env *TemplateEnv, x, y int) {
	text := node.Text
	if node.Path != "" {
		value := ""
		if w.HasSource {
			if v, ok := w.Source.Resolve(node.Path); ok {
				value = v.Text()
			}
		}
		if text == "" {
			text = value
		} else {
			text = strings.ReplaceAll(text, "{{value}}", value)
		}
	}
	text = env.Bind(text)

	font := FontByID(node.Font)
	if !node.Wrap || node.W <= 0 {
		r.drawAligned(font, text, x, y, node.Align, node.VAlign, node.Color)
		return
	}

	lineHeight := node.LineHeight
	if lineHeight <= 0 {
		lineHeight = font.LineHeight()
	}
	maxLines := node.MaxLines
	if node.H > 0 {
		if fromHeight := node.H / lineHeight; fromHeight > 0 {
			if maxLines <= 0 || fromHeight < maxLines {
				maxLines = fromHeight
			}
		}
	}

	lines := wrapLines(font, text, node.W)
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
		if node.Overflow == OverflowEllipsis && len(lines) > 0 {
			lines[len(lines)-1] = ellipsize(font, lines[len(lines)-1], node.W)
		}
	}

	blockHeight := len(lines) * lineHeight
	startY := y
	switch node.VAlign {
	case AlignMiddle:
		startY = y - blockHeight/2
	case AlignBottom:
		startY = y - blockHeight
	}
	for i, line := range lines {
		if line == "" {
			continue
		}
		r.drawAligned(font, line, x, startY+i*lineHeight, node.Align, AlignTop, node.Color)
	}
}

func (r *Renderer) renderSparkline(w *WidgetInstance, node *Node, x, y int) {
	r.FB.FillRect(x, y, node.W, node.H, node.Bg)
	r.drawRect(x, y, node.W, node.H, node.Color)

	s := w.Series[node.Key]
	if len(s) < 2 {
		return
	}

	minV, maxV := node.Min, node.Max
	if maxV <= minV {
		minV, maxV = s[0], s[0]
		for _, v := range s {
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
		// flat series still need a nonzero range
		if math.Abs(maxV-minV) < 0.001 {
			maxV = minV + 1
		}
	}

	plotW := float64(node.W - 2)
	plotH := float64(node.H - 2)
	for i := 1; i < len(s); i++ {
		x0f := float64(i-1) / float64(len(s)-1)
		x1f := float64(i) / float64(len(s)-1)
		y0f := (s[i-1] - minV) / (maxV - minV)
		y1f := (s[i] - minV) / (maxV - minV)

		x0 := x + 1 + int(x0f*plotW)
		x1 := x + 1 + int(x1f*plotW)
		y0 := y + node.H - 2 - int(y0f*plotH)
		y1 := y + node.H - 2 - int(y1f*plotH)
		r.drawLine(x0, y0, x1, y1, node.Color)
	}
}

func (r *Renderer) renderArc(node *Node, x, y int) {
	radius := node.Radius
	if radius <= 0 {
		radius = node.W / 2
	}
	if radius <= 0 {
		return
	}
	span := math.Abs(node.EndDeg - node.StartDeg)
	if span >= 359 && node.Bg != ColorBlack {
		r.fillCircle(x, y, radius, node.Bg)
	}
	step := 1.0
	if span > 120 {
		step = 2.0
	}
	for t := 0; t < node.Thickness; t++ {
		rr := float64(radius - t)
		for a := node.StartDeg; a <= node.EndDeg; a += step {
			rad := (a - 90) * math.Pi / 180
			r.FB.DrawPixel(x+int(math.Cos(rad)*rr), y+int(math.Sin(rad)*rr), node.Color)
		}
	}
}

func (r *Renderer) renderLine(w *WidgetInstance, node *Node, x, y int) {
	angle := 0.0
	useAngle := false
	if node.AngleExpr != "" {
		angle, useAngle = EvalExpression(node.AngleExpr, w.NumericVar)
	} else if node.Key != "" {
		angle, useAngle = w.NumericVar(node.Key)
	}

	var x2, y2 int
	if useAngle {
		length := node.Length
		if length <= 0 {
			length = node.Radius
		}
		if length <= 0 {
			return
		}
		rad := (angle - 90) * math.Pi / 180
		x2 = x + int(math.Cos(rad)*float64(length))
		y2 = y + int(math.Sin(rad)*float64(length))
	} else {
		x2 = w.X + node.X2
		y2 = w.Y + node.Y2
	}

	thickness := node.Thickness
	if thickness < 1 {
		thickness = 1
	}
	dx := float64(x2 - x)
	dy := float64(y2 - y)
	length := math.Sqrt(dx*dx + dy*dy)
	if length < 0.0001 {
		return
	}
	nx := -dy / length
	ny := dx / length
	for i := -(thickness / 2); i <= thickness/2; i++ {
		ox := int(nx * float64(i))
		oy := int(ny * float64(i))
		r.drawLine(x+ox, y+oy, x2+ox, y2+oy, node.Color)
	}
}

func (r *Renderer) renderIcon(w *WidgetInstance, node *Node, env *TemplateEnv, x, y int) {
	rawPath := node.Path
	if rawPath == "" {
		rawPath = node.Text
	}
	path := env.Bind(rawPath)
	if path == "" || node.W <= 0 || node.H <= 0 {
		return
	}
	pixels, err := r.Icons.Get(path, node.W, node.H)
	if err != nil {
		// missing asset: leave the area blank
		renderLog.Printf("%s: icon %s: %v", w.ID, path, err)
		return
	}
	// icons never draw outside their widget
	if x < w.X || y < w.Y || x+node.W > w.X+w.W || y+node.H > w.Y+w.H {
		return
	}
	r.FB.PushImage(x, y, node.W, node.H, pixels)
}

func (r *Renderer) renderMoon(w *WidgetInstance, node *Node, x, y int) {
	phase := 0.0
	havePhase := false
	if node.Key != "" {
		phase, havePhase = w.NumericVar(node.Key)
	}
	if !havePhase {
		phase = MoonPhaseFraction(r.now())
		havePhase = true
	}

	radius := node.Radius
	if radius <= 0 {
		if node.W > 0 {
			radius = node.W / 2
		} else {
			radius = 8
		}
	}
	if radius <= 0 {
		return
	}

	r.fillCircle(x, y, radius, node.Bg)

	waxing := phase <= 0.5
	threshold := float64(radius) * (1 - 2*phase)
	if !waxing {
		threshold = -float64(radius) * (2*phase - 1)
	}

	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			lit := float64(dx) > threshold
			if !waxing {
				lit = float64(dx) < threshold
			}
			if lit {
				r.FB.DrawPixel(x+dx, y+dy, node.Color)
			}
		}
	}

	if node.Thickness > 0 {
		r.drawCircle(x, y, radius, node.Color)
	}
}

func (r *Renderer) renderModal(w *WidgetInstance, m *Modal, env *TemplateEnv) {
	mx, my := m.X, m.Y
	if mx < 0 {
		mx = (w.W - m.W) / 2
	}
	if my < 0 {
		my = (w.H - m.H) / 2
	}
	x := w.X + mx
	y := w.Y + my

	r.FB.FillRect(x, y, m.W, m.H, m.Bg)
	r.drawRect(x, y, m.W, m.H, m.Border)

	font := FontByID(m.Font)
	lineY := y + 4
	if m.Title != "" {
		r.drawString(font, env.Bind(m.Title), x+6, lineY, m.TitleColor)
		lineY += font.LineHeight() + 2
	}
	if m.Text != "" {
		lineHeight := m.LineHeight
		if lineHeight <= 0 {
			lineHeight = font.LineHeight()
		}
		lines := wrapLines(font, env.Bind(m.Text), m.W-12)
		maxLines := m.MaxLines
		if maxLines <= 0 {
			maxLines = (y + m.H - lineY - 4) / lineHeight
		}
		if len(lines) > maxLines {
			lines = lines[:maxLines]
		}
		for i, line := range lines {
			r.drawString(font, line, x+6, lineY+i*lineHeight, m.TextColor)
		}
	}
}

// drawAligned positions a single line of text relative to its anchor
// point per the node's datum.
func (r *Renderer) drawAligned(font Font, text string, x, y int, align HAlign, valign VAlign, color RGB565) {
	switch align {
	case AlignCenter:
		x -= font.TextWidth(text) / 2
	case AlignRight:
		x -= font.TextWidth(text)
	}
	switch valign {
	case AlignMiddle:
		y -= font.LineHeight() / 2
	case AlignBottom:
		y -= font.LineHeight()
	case AlignBaseline:
		y -= font.Ascent()
	}
	r.drawString(font, text, x, y, color)
}

// drawString sanitizes and caps the text the way the panel fonts
// expect, then rasterizes it.
func (r *Renderer) drawString(font Font, text string, x, y int, color RGB565) {
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if len(text) > 160 {
		text = text[:160]
	}
	font.Draw(r.FB, x, y, text, color)
}

// drawRect outlines a rectangle with 1-px strokes.
func (r *Renderer) drawRect(x, y, w, h int, c RGB565) {
	if w <= 0 || h <= 0 {
		return
	}
	r.FB.FillRect(x, y, w, 1, c)
	r.FB.FillRect(x, y+h-1, w, 1, c)
	r.FB.FillRect(x, y, 1, h, c)
	r.FB.FillRect(x+w-1, y, 1, h, c)
}

// drawLine is a straightforward Bresenham.
func (r *Renderer) drawLine(x0, y0, x1, y1 int, c RGB565) {
	dx := x1 - x0
	if dx < 0 {
		dx = -dx
	}
	dy := y1 - y0
	if dy < 0 {
		dy = -dy
	}
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	err := dx - dy
	for {
		r.FB.DrawPixel(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (r *Renderer) fillCircle(cx, cy, radius int, c RGB565) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				r.FB.DrawPixel(cx+dx, cy+dy, c)
			}
		}
	}
}

func (r *Renderer) drawCircle(cx, cy, radius int, c RGB565) {
	for a := 0.0; a < 360; a++ {
		rad := a * math.Pi / 180
		r.FB.DrawPixel(cx+int(math.Cos(rad)*float64(radius)), cy+int(math.Sin(rad)*float64(radius)), c)
	}
}

// wrapLines splits text into lines that fit maxWidth, breaking on
// whitespace and splitting words that are longer than a whole line.
func wrapLines(font Font, text string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{text}
	}

	var lines []string
	current := ""

	placeLongWord := func(word string) {
		start := 0
		for start < len(word) {
			end := start + 1
			for end <= len(word) && font.TextWidth(word[start:end]) <= maxWidth {
				end++
			}
			end--
			if end <= start {
				end = start + 1
			}
			piece := word[start:end]
			start = end
			if start < len(word) {
				lines = append(lines, piece)
			} else {
				current = piece
			}
		}
	}

	placeWord := func(word string) {
		if word == "" {
			return
		}
		if current == "" {
			if font.TextWidth(word) <= maxWidth {
				current = word
			} else {
				placeLongWord(word)
			}
			return
		}
		candidate := current + " " + word
		if font.TextWidth(candidate) <= maxWidth {
			current = candidate
			return
		}
		lines = append(lines, current)
		current = ""
		if font.TextWidth(word) <= maxWidth {
			current = word
		} else {
			placeLongWord(word)
		}
	}

	word := ""
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			placeWord(word)
			word = ""
			lines = append(lines, current)
			current = ""
		case ' ', '\t', '\r':
			placeWord(word)
			word = ""
		default:
			word += string(text[i])
		}
	}
	placeWord(word)
	if current != "" || len(lines) == 0 {
		lines = append(lines, current)
	}
	return lines
}

// ellipsize trims a line and appends "..." so it fits maxWidth.
func ellipsize(font Font, text string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if font.TextWidth(text) <= maxWidth {
		return text
	}
	const dots = "..."
	if font.TextWidth(dots) > maxWidth {
		for i := len(dots); i > 0; i-- {
			if font.TextWidth(dots[:i]) <= maxWidth {
				return dots[:i]
			}
		}
		return ""
	}
	for n := len(text); n > 0; n-- {
		candidate := text[:n] + dots
		if font.TextWidth(candidate) <= maxWidth {
			return candidate
		}
	}
	return dots
}
