package usda

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/timtadh/lexmachine"
	"github.com/timtadh/lexmachine/machines"
)

const (
	TOKEN_IDENT = iota
	TOKEN_NUMBER
	TOKEN_STRING
	TOKEN_ASSET
	TOKEN_PATHREF
	TOKEN_PUNCT
	TOKEN_COMMENT
)

var lexer *lexmachine.Lexer

func init() {
	lexer = lexmachine.NewLexer()
	lexer.Add([]byte(`[a-zA-Z_][a-zA-Z0-9_:.]*`), getToken(TOKEN_IDENT))
	lexer.Add([]byte(`[\+\-]?[0-9]*\.?[0-9]+([eE][\+\-]?[0-9]+)?`), getToken(TOKEN_NUMBER))
	lexer.Add([]byte(`"(\\.|[^"])*"`), getToken(TOKEN_STRING))
	lexer.Add([]byte(`@[^@]*@`), getToken(TOKEN_ASSET))
	lexer.Add([]byte(`<[^>]*>`), getToken(TOKEN_PATHREF))
	lexer.Add([]byte(`[\(\)\[\]\{\}=,;]`), getToken(TOKEN_PUNCT))
	lexer.Add([]byte(`#[^\n]*`), getToken(TOKEN_COMMENT))
	lexer.Add([]byte(`\s+`), skip)
}

func getToken(tokenType int) lexmachine.Action {
	return func(s *lexmachine.Scanner, m *machines.Match) (interface{}, error) {
		return s.Token(tokenType, string(m.Bytes), m), nil
	}
}

func skip(scan *lexmachine.Scanner, match *machines.Match) (interface{}, error) {
	return nil, nil
}

// pathRef is a scene-path target (</World/Looks/Mat>), kept distinct
// from plain strings so the builder can tell connections from values.
type pathRef string

// assetRef is a file reference (@textures/wood.png@), resolved against
// the layer directory by the builder.
type assetRef string

// rawPrim is one parsed "def" block before scene typing.
type rawPrim struct {
	schema   string
	name     string
	path     string
	attrs    map[string]interface{}
	rels     map[string][]string
	children []*rawPrim
	line     int
}

type parser struct {
	toks []*lexmachine.Token
	pos  int
}

func tokenize(text []byte) ([]*lexmachine.Token, error) {
	scanner, err := lexer.Scanner(text)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to create lexer scanner")
	}

	toks := make([]*lexmachine.Token, 0, 256)
	for Itok, err, eos := scanner.Next(); !eos; Itok, err, eos = scanner.Next() {
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to parse token")
		}
		tok := Itok.(*lexmachine.Token)
		if tok.Type == TOKEN_COMMENT {
			continue
		}
		toks = append(toks, tok)
	}
	return toks, nil
}

func (p *parser) peek() *lexmachine.Token {
	if p.pos >= len(p.toks) {
		return nil
	}
	return p.toks[p.pos]
}

func (p *parser) next() *lexmachine.Token {
	tok := p.peek()
	if tok != nil {
		p.pos++
	}
	return tok
}

func (p *parser) isPunct(tok *lexmachine.Token, b byte) bool {
	return tok != nil && tok.Type == TOKEN_PUNCT && len(tok.Lexeme) == 1 && tok.Lexeme[0] == b
}

func (p *parser) acceptPunct(b byte) bool {
	if p.isPunct(p.peek(), b) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectPunct(b byte) error {
	tok := p.next()
	if !p.isPunct(tok, b) {
		if tok == nil {
			return errors.Errorf("Expected %q, got end of layer", string(b))
		}
		return errors.Errorf("Expected %q on line %v (%q)", string(b), tok.StartLine, tok.Lexeme)
	}
	return nil
}

// skipBalanced consumes a bracketed region the subset does not model
// (layer metadata, prim metadata, dictionaries). The opening bracket
// must already be consumed.
func (p *parser) skipBalanced(open, close byte) error {
	depth := 1
	for depth > 0 {
		tok := p.next()
		if tok == nil {
			return errors.Errorf("Unbalanced %q", string(open))
		}
		if p.isPunct(tok, open) {
			depth++
		} else if p.isPunct(tok, close) {
			depth--
		}
	}
	return nil
}

func isDefKeyword(tok *lexmachine.Token) bool {
	if tok == nil || tok.Type != TOKEN_IDENT {
		return false
	}
	switch string(tok.Lexeme) {
	case "def", "over", "class":
		return true
	}
	return false
}

func (p *parser) parseLayer() ([]*rawPrim, error) {
	// Layer metadata block.
	if p.acceptPunct('(') {
		if err := p.skipBalanced('(', ')'); err != nil {
			return nil, err
		}
	}

	roots := make([]*rawPrim, 0, 4)
	for p.peek() != nil {
		if !isDefKeyword(p.peek()) {
			tok := p.peek()
			return nil, errors.Errorf("Expected prim definition on line %v (%q)", tok.StartLine, tok.Lexeme)
		}
		prim, err := p.parsePrim("")
		if err != nil {
			return nil, err
		}
		roots = append(roots, prim)
	}
	return roots, nil
}

func (p *parser) parsePrim(parentPath string) (*rawPrim, error) {
	def := p.next() // def/over/class, verified by the caller

	prim := &rawPrim{
		attrs: make(map[string]interface{}),
		rels:  make(map[string][]string),
		line:  def.StartLine,
	}

	if tok := p.peek(); tok != nil && tok.Type == TOKEN_IDENT {
		prim.schema = string(p.next().Lexeme)
	}

	nameTok := p.next()
	if nameTok == nil || nameTok.Type != TOKEN_STRING {
		return nil, errors.Errorf("Expected prim name after %q on line %v", def.Lexeme, def.StartLine)
	}
	name, err := strconv.Unquote(string(nameTok.Lexeme))
	if err != nil {
		return nil, errors.Errorf("Bad prim name on line %v (%q)", nameTok.StartLine, nameTok.Lexeme)
	}
	prim.name = name
	prim.path = parentPath + "/" + name

	if p.acceptPunct('(') {
		if err := p.skipBalanced('(', ')'); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct('{'); err != nil {
		return nil, err
	}

	for !p.acceptPunct('}') {
		tok := p.peek()
		if tok == nil {
			return nil, errors.Errorf("Unterminated prim %q (line %v)", prim.path, prim.line)
		}

		switch {
		case isDefKeyword(tok):
			child, err := p.parsePrim(prim.path)
			if err != nil {
				return nil, err
			}
			prim.children = append(prim.children, child)
		case tok.Type == TOKEN_IDENT:
			if err := p.parseProperty(prim); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Errorf("Unexpected token on line %v (%q)", tok.StartLine, tok.Lexeme)
		}
	}

	return prim, nil
}

func isQualifier(word string) bool {
	switch word {
	case "uniform", "custom", "prepend", "append", "delete", "add", "varying":
		return true
	}
	return false
}

// parseProperty handles one attribute or relationship line inside a
// prim body.
func (p *parser) parseProperty(prim *rawPrim) error {
	words := make([]string, 0, 3)
	for {
		tok := p.peek()
		if tok == nil || tok.Type != TOKEN_IDENT {
			break
		}
		word := string(p.next().Lexeme)
		if isQualifier(word) {
			continue
		}
		words = append(words, word)
		// Array type marker ("float3[]").
		if p.acceptPunct('[') {
			if err := p.expectPunct(']'); err != nil {
				return err
			}
		}
		if len(words) == 2 {
			break
		}
	}

	switch {
	case len(words) == 2 && words[0] == "rel":
		return p.parseRelTargets(prim, words[1])
	case len(words) == 2:
		return p.parseAttrValue(prim, words[1])
	case len(words) == 1:
		// Typeless attribute ("visibility = ...").
		return p.parseAttrValue(prim, words[0])
	}
	return errors.Errorf("Malformed property in prim %q (line %v)", prim.path, prim.line)
}

func (p *parser) parseAttrValue(prim *rawPrim, name string) error {
	if p.acceptPunct('=') {
		value, err := p.parseValue()
		if err != nil {
			return err
		}
		prim.attrs[name] = value
	} else {
		// Declaration without a value (shader output terminals).
		prim.attrs[name] = nil
	}

	// Attribute metadata.
	if p.acceptPunct('(') {
		if err := p.skipBalanced('(', ')'); err != nil {
			return err
		}
	}
	p.acceptPunct(';')
	return nil
}

func (p *parser) parseRelTargets(prim *rawPrim, name string) error {
	targets := []string{}
	if p.acceptPunct('=') {
		tok := p.peek()
		switch {
		case tok != nil && tok.Type == TOKEN_PATHREF:
			targets = append(targets, trimPathRef(p.next()))
		case p.acceptPunct('['):
			for !p.acceptPunct(']') {
				t := p.next()
				if t == nil {
					return errors.Errorf("Unterminated target list for %q (line %v)", name, prim.line)
				}
				if t.Type == TOKEN_PATHREF {
					targets = append(targets, trimPathRef(t))
				} else if !p.isPunct(t, ',') {
					return errors.Errorf("Expected path target on line %v (%q)", t.StartLine, t.Lexeme)
				}
			}
		default:
			return errors.Errorf("Expected target for rel %q (line %v)", name, prim.line)
		}
	}
	prim.rels[name] = targets

	if p.acceptPunct('(') {
		return p.skipBalanced('(', ')')
	}
	return nil
}

func trimPathRef(tok *lexmachine.Token) string {
	return strings.Trim(string(tok.Lexeme), "<>")
}

func (p *parser) parseValue() (interface{}, error) {
	tok := p.next()
	if tok == nil {
		return nil, errors.New("Expected value, got end of layer")
	}

	switch tok.Type {
	case TOKEN_NUMBER:
		f, err := strconv.ParseFloat(string(tok.Lexeme), 64)
		if err != nil {
			return nil, errors.Errorf("Unknown number format on line %v (%q)", tok.StartLine, tok.Lexeme)
		}
		return f, nil
	case TOKEN_STRING:
		s, err := strconv.Unquote(string(tok.Lexeme))
		if err != nil {
			return nil, errors.Errorf("Unknown string format on line %v (%q)", tok.StartLine, tok.Lexeme)
		}
		return s, nil
	case TOKEN_ASSET:
		return assetRef(strings.Trim(string(tok.Lexeme), "@")), nil
	case TOKEN_PATHREF:
		return pathRef(trimPathRef(tok)), nil
	case TOKEN_IDENT:
		switch string(tok.Lexeme) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "None":
			return nil, nil
		}
		return string(tok.Lexeme), nil
	case TOKEN_PUNCT:
		switch tok.Lexeme[0] {
		case '(':
			return p.parseSequence(')')
		case '[':
			return p.parseSequence(']')
		case '{':
			// Dictionaries carry nothing the converter reads.
			return nil, p.skipBalanced('{', '}')
		}
	}
	return nil, errors.Errorf("Unexpected value on line %v (%q)", tok.StartLine, tok.Lexeme)
}

// parseSequence reads a tuple or list body; all-numeric sequences
// collapse to []float64.
func (p *parser) parseSequence(close byte) (interface{}, error) {
	items := []interface{}{}
	for !p.acceptPunct(close) {
		if p.acceptPunct(',') {
			continue
		}
		if p.peek() == nil {
			return nil, errors.Errorf("Unterminated sequence")
		}
		item, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	floats := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := item.(float64)
		if !ok {
			return items, nil
		}
		floats = append(floats, f)
	}
	return floats, nil
}
