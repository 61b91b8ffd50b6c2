package catalog

import (
	"fmt"
	"strings"
	"unicode"
)

// TypeExpr is a parsed type annotation such as "Optional[Tuple[int, int]]".
type TypeExpr struct {
	Name    string     // "" for an unannotated parameter or a bracketed argument list
	Args    []TypeExpr // Generic arguments, in declaration order
	Literal bool       // Name holds a literal value (string or number) rather than a type
	List    bool       // Bare "[...]" argument list, as in Callable[[int], str]
}

// typing aliases whose runtime origin renders in lower case.
var builtinOrigins = map[string]string{
	"List":      "list",
	"Dict":      "dict",
	"Tuple":     "tuple",
	"Set":       "set",
	"FrozenSet": "frozenset",
	"Type":      "type",
}

// ParseAnnotation parses annotation text into a TypeExpr.
// The empty string parses to the unannotated expression.
func ParseAnnotation(s string) (TypeExpr, error) {
	p := &annotationParser{src: s}
	p.skipSpace()
	if p.done() {
		return TypeExpr{}, nil
	}
	expr, err := p.union()
	if err != nil {
		return TypeExpr{}, err
	}
	p.skipSpace()
	if !p.done() {
		return TypeExpr{}, fmt.Errorf("annotation %q: unexpected %q at offset %d", s, p.src[p.pos:], p.pos)
	}
	return expr, nil
}

// String renders the expression the way the method templates display types.
func (t TypeExpr) String() string {
	if t.List {
		return "[" + joinExprs(t.Args) + "]"
	}
	if t.Literal {
		return t.Name
	}
	if t.Name == "" {
		return "Any"
	}

	name := lastSegment(t.Name)
	switch name {
	case "Optional", "Union":
		members := t.unionMembers()
		if len(members) == 2 {
			for i, m := range members {
				if m.isNone() {
					return "Optional[" + members[1-i].String() + "]"
				}
			}
		}
		if len(members) == 1 {
			return members[0].String()
		}
		return "Union[" + joinExprs(members) + "]"
	case "None", "NoneType":
		return "NoneType"
	}

	if origin, ok := builtinOrigins[name]; ok {
		name = origin
	}
	if len(t.Args) == 0 {
		return name
	}
	return name + "[" + joinExprs(t.Args) + "]"
}

// unionMembers flattens nested unions and optionals into their distinct members.
func (t TypeExpr) unionMembers() []TypeExpr {
	var out []TypeExpr
	seen := make(map[string]bool)
	var walk func(TypeExpr)
	walk = func(e TypeExpr) {
		switch lastSegment(e.Name) {
		case "Union":
			if !e.Literal && len(e.Args) > 0 {
				for _, a := range e.Args {
					walk(a)
				}
				return
			}
		case "Optional":
			if !e.Literal && len(e.Args) == 1 {
				walk(e.Args[0])
				walk(TypeExpr{Name: "None"})
				return
			}
		}
		key := fmt.Sprintf("%#v", e)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, e)
	}
	walk(t)
	return out
}

func (t TypeExpr) isNone() bool {
	return !t.Literal && (t.Name == "None" || t.Name == "NoneType")
}

func joinExprs(exprs []TypeExpr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return name
}

type annotationParser struct {
	src string
	pos int
}

func (p *annotationParser) done() bool { return p.pos >= len(p.src) }

func (p *annotationParser) peek() byte {
	if p.done() {
		return 0
	}
	return p.src[p.pos]
}

func (p *annotationParser) skipSpace() {
	for !p.done() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

// union parses "X | Y | ..." into a Union expression.
func (p *annotationParser) union() (TypeExpr, error) {
	first, err := p.term()
	if err != nil {
		return TypeExpr{}, err
	}
	members := []TypeExpr{first}
	for {
		p.skipSpace()
		if p.peek() != '|' {
			break
		}
		p.pos++
		next, err := p.term()
		if err != nil {
			return TypeExpr{}, err
		}
		members = append(members, next)
	}
	if len(members) == 1 {
		return first, nil
	}
	return TypeExpr{Name: "Union", Args: members}, nil
}

func (p *annotationParser) term() (TypeExpr, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == 0:
		return TypeExpr{}, fmt.Errorf("annotation %q: unexpected end", p.src)
	case c == '\'' || c == '"':
		return p.quoted(c)
	case c == '[':
		p.pos++
		args, err := p.args()
		if err != nil {
			return TypeExpr{}, err
		}
		return TypeExpr{Args: args, List: true}, nil
	case c == '.' && strings.HasPrefix(p.src[p.pos:], "..."):
		p.pos += 3
		return TypeExpr{Name: "Ellipsis", Literal: true}, nil
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number(), nil
	}

	start := p.pos
	for !p.done() {
		c := rune(p.src[p.pos])
		if c != '.' && c != '_' && !unicode.IsLetter(c) && !unicode.IsDigit(c) {
			break
		}
		p.pos++
	}
	if start == p.pos {
		return TypeExpr{}, fmt.Errorf("annotation %q: unexpected %q at offset %d", p.src, p.peek(), p.pos)
	}
	expr := TypeExpr{Name: p.src[start:p.pos]}

	p.skipSpace()
	if p.peek() == '[' {
		p.pos++
		args, err := p.args()
		if err != nil {
			return TypeExpr{}, err
		}
		expr.Args = args
	}
	return expr, nil
}

// args parses a comma separated list up to and including the closing bracket.
func (p *annotationParser) args() ([]TypeExpr, error) {
	var args []TypeExpr
	for {
		p.skipSpace()
		if p.peek() == ']' {
			p.pos++
			return args, nil
		}
		arg, err := p.union()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
		default:
			return nil, fmt.Errorf("annotation %q: expected ',' or ']' at offset %d", p.src, p.pos)
		}
	}
}

func (p *annotationParser) quoted(quote byte) (TypeExpr, error) {
	p.pos++
	start := p.pos
	for !p.done() && p.src[p.pos] != quote {
		p.pos++
	}
	if p.done() {
		return TypeExpr{}, fmt.Errorf("annotation %q: unterminated string", p.src)
	}
	value := p.src[start:p.pos]
	p.pos++
	return TypeExpr{Name: value, Literal: true}, nil
}

func (p *annotationParser) number() TypeExpr {
	start := p.pos
	p.pos++
	for !p.done() {
		c := p.src[p.pos]
		if (c < '0' || c > '9') && c != '.' && c != 'e' && c != 'E' {
			break
		}
		p.pos++
	}
	return TypeExpr{Name: p.src[start:p.pos], Literal: true}
}
