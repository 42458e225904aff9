package costar

import (
	"fmt"
	"strconv"
	"strings"
)

// TemplateEnv supplies the runtime tokens available to {{...}} bindings:
// the geo fix, user preferences, the widget instance settings, and the
// widget's resolved field values.
type TemplateEnv struct {
	Geo      GeoSnapshot
	Prefs    PrefSnapshot
	Settings map[string]string
	Values   map[string]string
}

// Bind substitutes {{...}} tokens in a single left-to-right pass.
// Replacement text is not rescanned, so values containing braces cannot
// expand further. Unknown tokens become empty strings.
func (env *TemplateEnv) Bind(input string) string {
	if !strings.Contains(input, "{{") {
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

		expr := strings.TrimSpace(input[start+2 : end])
		out.WriteString(env.evalToken(expr))
		pos = end + 2
	}
	return out.String()
}

// evalToken evaluates one template expression: either a helper call or a
// plain token lookup.
func (env *TemplateEnv) evalToken(expr string) string {
	if lparen := strings.IndexByte(expr, '('); lparen >= 0 && strings.HasSuffix(expr, ")") {
		fn := strings.ToLower(strings.TrimSpace(expr[:lparen]))
		args := splitArgs(expr[lparen+1 : len(expr)-1])
		if value, ok := env.evalHelper(fn, args); ok {
			return value
		}
	}
	value, _ := env.resolveToken(expr)
	return value
}

func (env *TemplateEnv) evalHelper(fn string, args []string) (string, bool) {
	switch fn {
	case "if_true":
		if len(args) != 3 {
			return "", false
		}
		cond := env.resolveArg(args[0])
		if isTruthy(cond) {
			return env.resolveArg(args[1]), true
		}
		return env.resolveArg(args[2]), true

	case "if_eq", "if_ne":
		if len(args) != 4 {
			return "", false
		}
		eq := env.resolveArg(args[0]) == env.resolveArg(args[1])
		if (fn == "if_eq") == eq {
			return env.resolveArg(args[2]), true
		}
		return env.resolveArg(args[3]), true

	case "if_gt", "if_gte", "if_lt", "if_lte":
		if len(args) != 4 {
			return "", false
		}
		lhs, lok := parseStrictFloat(env.resolveArg(args[0]))
		rhs, rok := parseStrictFloat(env.resolveArg(args[1]))
		if !lok || !rok {
			return "", false
		}
		var cond bool
		switch fn {
		case "if_gt":
			cond = lhs > rhs
		case "if_gte":
			cond = lhs >= rhs
		case "if_lt":
			cond = lhs < rhs
		case "if_lte":
			cond = lhs <= rhs
		}
		if cond {
			return env.resolveArg(args[2]), true
		}
		return env.resolveArg(args[3]), true
	}
	return "", false
}

// resolveArg unquotes a helper argument and resolves it as a token;
// unresolvable arguments are kept as literal text.
func (env *TemplateEnv) resolveArg(arg string) string {
	token := unquote(arg)
	if value, ok := env.resolveToken(token); ok {
		return value
	}
	return token
}

func (env *TemplateEnv) resolveToken(key string) (string, bool) {
	if v, ok := env.Values[key]; ok {
		return v, true
	}

	switch key {
	case "geo.lat":
		return fmt.Sprintf("%.4f", env.Geo.Lat), true
	case "geo.lon":
		return fmt.Sprintf("%.4f", env.Geo.Lon), true
	case "geo.tz":
		return env.Geo.Tz, true
	case "geo.label":
		if env.Geo.Label != "" {
			return env.Geo.Label, true
		}
		if env.Geo.Tz != "" {
			return env.Geo.Tz, true
		}
		return "Unknown", true
	case "geo.offset_min":
		if env.Geo.OffsetKnown {
			return strconv.Itoa(env.Geo.OffsetMin), true
		}
		return "0", true
	case "pref.clock_24h":
		if env.Prefs.Clock24h {
			return "true", true
		}
		return "false", true
	case "pref.temp_unit":
		if env.Prefs.Fahrenheit {
			return "F", true
		}
		return "C", true
	case "pref.distance_unit":
		if env.Prefs.Miles {
			return "mi", true
		}
		return "km", true
	}

	if name, ok := strings.CutPrefix(key, "setting."); ok {
		if v, ok := env.Settings[name]; ok {
			return v, true
		}
	}
	return "", false
}

// isTruthy: non-empty and not one of 0/false/no/off, case-insensitive.
func isTruthy(s string) bool {
	if s == "" {
		return false
	}
	switch strings.ToLower(s) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}

// splitArgs splits helper arguments on top-level commas, respecting
// quotes and nested parentheses.
func splitArgs(raw string) []string {
	var out []string
	var current strings.Builder
	depth := 0
	var quote byte
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if quote != 0 {
			current.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			current.WriteByte(c)
		case '(':
			depth++
			current.WriteByte(c)
		case ')':
			if depth > 0 {
				depth--
			}
			current.WriteByte(c)
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(current.String()))
				current.Reset()
				continue
			}
			current.WriteByte(c)
		default:
			current.WriteByte(c)
		}
	}
	out = append(out, strings.TrimSpace(current.String()))
	return out
}

func unquote(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= 2 {
		first, last := token[0], token[len(token)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return token[1 : len(token)-1]
		}
	}
	return token
}

// parseStrictFloat parses a complete numeric string, rejecting anything
// with trailing junk.
func parseStrictFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
