package index

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseExpr parses the textual form of an index expression, e.g.
//
//	"10"  "2:20:3"  "::-1, ..., 0"  "[1, 3, 3, 7], 100:200"  "None, 5"
//
// An empty or all-whitespace expression yields no tokens.
func ParseExpr(expr string) ([]Token, error) {
	parts, err := splitTop(expr)
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 && strings.TrimSpace(parts[0]) == "" {
		return nil, nil
	}

	tokens := make([]Token, 0, len(parts))
	for _, raw := range parts {
		p := strings.TrimSpace(raw)
		switch {
		case p == "":
			return nil, fmt.Errorf("%w: empty index in %q", ErrIndex, expr)
		case p == "...":
			tokens = append(tokens, Ellipsis{})
		case p == "None" || p == "newaxis":
			tokens = append(tokens, NewAxis{})
		case strings.HasPrefix(p, "["):
			l, err := parseList(p)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, l)
		case strings.Contains(p, ":"):
			s, err := parseSlice(p)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, s)
		default:
			i, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid index %q", ErrIndex, p)
			}
			tokens = append(tokens, Int(i))
		}
	}
	return tokens, nil
}

// splitTop splits on commas that are not inside brackets
func splitTop(expr string) ([]string, error) {
	var parts []string
	depth, last := 0, 0
	for i, r := range expr {
		switch r {
		case '[':
			depth++
			if depth > 1 {
				return nil, fmt.Errorf("%w: nested lists are not supported: %q", ErrIndex, expr)
			}
		case ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced ']' in %q", ErrIndex, expr)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, expr[last:i])
				last = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced '[' in %q", ErrIndex, expr)
	}
	return append(parts, expr[last:]), nil
}

func parseList(p string) (List, error) {
	if !strings.HasSuffix(p, "]") {
		return nil, fmt.Errorf("%w: invalid list %q", ErrIndex, p)
	}
	body := strings.TrimSpace(p[1 : len(p)-1])
	if body == "" {
		return List{}, nil
	}
	fields := strings.Split(body, ",")
	l := make(List, 0, len(fields))
	for _, f := range fields {
		i, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid list element %q", ErrIndex, f)
		}
		l = append(l, i)
	}
	return l, nil
}

func parseSlice(p string) (Slice, error) {
	fields := strings.Split(p, ":")
	if len(fields) > 3 {
		return Slice{}, fmt.Errorf("%w: invalid slice %q", ErrIndex, p)
	}
	var vals [3]*int
	for k, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return Slice{}, fmt.Errorf("%w: invalid slice bound %q in %q", ErrIndex, f, p)
		}
		vals[k] = &v
	}
	return Slice{Start: vals[0], Stop: vals[1], Step: vals[2]}, nil
}
