package costar

import (
	"math"
	"strconv"
	"strings"
)

// VarResolver supplies named values to expression evaluation. Widget
// numeric values and repeat-loop variables both come in this way.
type VarResolver func(name string) (float64, bool)

const earthRadiusM = 6371000.0

// EvalExpression evaluates an arithmetic expression used by hand/line
// angles and repeat-node geometry. Supports + - * / % with unary sign and
// parentheses, a small function set, and the constant pi. Trig takes and
// returns degrees. The whole input must parse; any failure returns false.
func EvalExpression(expr string, resolve VarResolver) (float64, bool) {
	p := exprParser{src: expr, resolve: resolve}
	v, ok := p.parseExpr()
	if !ok {
		return 0, false
	}
	p.skipSpaces()
	if p.pos != len(p.src) {
		return 0, false
	}
	return v, true
}

type exprParser struct {
	src     string
	pos     int
	resolve VarResolver
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) parseExpr() (float64, bool) {
	out, ok := p.parseTerm()
	if !ok {
		return 0, false
	}
	for {
		p.skipSpaces()
		if p.pos >= len(p.src) || (p.src[p.pos] != '+' && p.src[p.pos] != '-') {
			return out, true
		}
		op := p.src[p.pos]
		p.pos++
		rhs, ok := p.parseTerm()
		if !ok {
			return 0, false
		}
		if op == '+' {
			out += rhs
		} else {
			out -= rhs
		}
	}
}

func (p *exprParser) parseTerm() (float64, bool) {
	out, ok := p.parseFactor()
	if !ok {
		return 0, false
	}
	for {
		p.skipSpaces()
		if p.pos >= len(p.src) {
			return out, true
		}
		op := p.src[p.pos]
		if op != '*' && op != '/' && op != '%' {
			return out, true
		}
		p.pos++
		rhs, ok := p.parseFactor()
		if !ok {
			return 0, false
		}
		switch op {
		case '*':
			out *= rhs
		case '/':
			if math.Abs(rhs) < 1e-6 {
				return 0, false
			}
			out /= rhs
		default:
			if math.Abs(rhs) < 1e-6 {
				return 0, false
			}
			out = math.Mod(out, rhs)
		}
	}
}

func (p *exprParser) parseFactor() (float64, bool) {
	p.skipSpaces()
	if p.pos >= len(p.src) {
		return 0, false
	}

	switch c := p.src[p.pos]; {
	case c == '(':
		p.pos++
		v, ok := p.parseExpr()
		if !ok {
			return 0, false
		}
		p.skipSpaces()
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return 0, false
		}
		p.pos++
		return v, true

	case c == '+' || c == '-':
		p.pos++
		v, ok := p.parseFactor()
		if !ok {
			return 0, false
		}
		if c == '-' {
			v = -v
		}
		return v, true

	case c >= '0' && c <= '9' || c == '.':
		start := p.pos
		for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.') {
			p.pos++
		}
		v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}

	ident, ok := p.parseIdentifier()
	if !ok {
		return 0, false
	}
	p.skipSpaces()
	if p.pos < len(p.src) && p.src[p.pos] == '(' {
		return p.parseFunction(ident)
	}
	return p.resolveVariable(ident)
}

func (p *exprParser) parseIdentifier() (string, bool) {
	if p.pos >= len(p.src) {
		return "", false
	}
	c := p.src[p.pos]
	if !isIdentStart(c) {
		return "", false
	}
	start := p.pos
	for p.pos < len(p.src) && isIdentRune(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos], true
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentRune(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func (p *exprParser) resolveVariable(name string) (float64, bool) {
	if name == "pi" {
		return math.Pi, true
	}
	if p.resolve != nil {
		return p.resolve(name)
	}
	return 0, false
}

func (p *exprParser) parseFunction(name string) (float64, bool) {
	p.skipSpaces()
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return 0, false
	}
	p.pos++
	p.skipSpaces()

	var args []float64
	if p.pos < len(p.src) && p.src[p.pos] == ')' {
		p.pos++
	} else {
		for {
			v, ok := p.parseExpr()
			if !ok {
				return 0, false
			}
			args = append(args, v)
			p.skipSpaces()
			if p.pos < len(p.src) && p.src[p.pos] == ',' {
				p.pos++
				continue
			}
			break
		}
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return 0, false
		}
		p.pos++
	}

	return evalFunction(strings.ToLower(name), args)
}

func evalFunction(name string, args []float64) (float64, bool) {
	const degToRad = math.Pi / 180

	one := func(f func(float64) float64) (float64, bool) {
		if len(args) != 1 {
			return 0, false
		}
		return f(args[0]), true
	}
	two := func(f func(a, b float64) float64) (float64, bool) {
		if len(args) != 2 {
			return 0, false
		}
		return f(args[0], args[1]), true
	}

	switch name {
	case "sin":
		return one(func(a float64) float64 { return math.Sin(a * degToRad) })
	case "cos":
		return one(func(a float64) float64 { return math.Cos(a * degToRad) })
	case "tan":
		return one(func(a float64) float64 { return math.Tan(a * degToRad) })
	case "asin":
		return one(func(a float64) float64 { return math.Asin(a) / degToRad })
	case "acos":
		return one(func(a float64) float64 { return math.Acos(a) / degToRad })
	case "atan":
		return one(func(a float64) float64 { return math.Atan(a) / degToRad })
	case "abs":
		return one(math.Abs)
	case "sqrt":
		if len(args) != 1 || args[0] < 0 {
			return 0, false
		}
		return math.Sqrt(args[0]), true
	case "floor":
		return one(math.Floor)
	case "ceil":
		return one(math.Ceil)
	case "round":
		return one(math.Round)
	case "min":
		return two(math.Min)
	case "max":
		return two(math.Max)
	case "pow":
		return two(math.Pow)
	case "rad":
		return one(func(a float64) float64 { return a * degToRad })
	case "deg":
		return one(func(a float64) float64 { return a / degToRad })
	case "haversine_m":
		if len(args) != 4 {
			return 0, false
		}
		return haversineMeters(args[0], args[1], args[2], args[3]), true
	case "meters_to_miles":
		return one(func(a float64) float64 { return a / 1609.344 })
	case "miles_to_meters":
		return one(func(a float64) float64 { return a * 1609.344 })
	}
	return 0, false
}

// haversineMeters returns the great-circle distance between two lat/lon
// points in meters.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// formatVarValue renders a numeric variable for template substitution:
// integers bare, otherwise three decimals with trailing zeros trimmed.
func formatVarValue(v float64) string {
	rounded := math.Round(v)
	if math.Abs(v-rounded) < 1e-4 {
		return strconv.FormatInt(int64(rounded), 10)
	}
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
