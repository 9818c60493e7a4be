package phpast

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"
)

// parserPool is a pool of reusable tree-sitter parsers for PHP.
var parserPool = sync.Pool{
	New: func() interface{} {
		parser := sitter.NewParser()
		parser.SetLanguage(php.GetLanguage())
		return parser
	},
}

// ParseError reports a source file that tree-sitter could not parse cleanly.
type ParseError struct {
	Path string
	Line int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: syntax error near line %d", e.Path, e.Line)
}

// Parser converts PHP source into the phpast node set.
type Parser struct {
	// Strict rejects files whose syntax tree contains error nodes.
	Strict bool
}

// NewParser creates a parser.
func NewParser(strict bool) *Parser {
	return &Parser{Strict: strict}
}

// ParseFile reads and parses a PHP file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return p.Parse(ctx, path, content)
}

// Parse parses PHP source bytes. path is only used for error messages and
// the returned File.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parsing file %s: %w", path, err)
	}

	// Pooled parsers must never see a cancellable context.
	parser := parserPool.Get().(*sitter.Parser)
	defer parserPool.Put(parser)

	tree := parser.Parse(nil, content)
	if tree == nil {
		return nil, fmt.Errorf("parsing file %s failed", path)
	}
	defer tree.Close()

	root := tree.RootNode()
	if p.Strict && root.HasError() {
		return nil, &ParseError{Path: path, Line: firstErrorLine(root)}
	}

	c := &converter{content: content}
	return &File{Path: path, Stmts: c.statements(root)}, nil
}

// firstErrorLine returns the line of the first ERROR or missing node.
func firstErrorLine(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	if node.Type() == "ERROR" || node.IsMissing() {
		return int(node.StartPoint().Row) + 1
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && child.HasError() {
			if line := firstErrorLine(child); line > 0 {
				return line
			}
		}
	}
	return int(node.StartPoint().Row) + 1
}

type converter struct {
	content []byte
}

func pos(node *sitter.Node) Pos {
	return Pos{
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
	}
}

// nodeText extracts the source text of a node.
func (c *converter) nodeText(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if start >= uint32(len(c.content)) || end > uint32(len(c.content)) {
		return ""
	}
	return string(c.content[start:end])
}

func (c *converter) statements(parent *sitter.Node) []Node {
	if parent == nil {
		return nil
	}
	var out []Node
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		out = append(out, c.statement(parent.NamedChild(i))...)
	}
	return out
}

// body converts a statement-or-block child into a flat statement list.
func (c *converter) body(node *sitter.Node) []Node {
	if node == nil {
		return nil
	}
	switch node.Type() {
	case "compound_statement", "colon_block":
		return c.statements(node)
	}
	return c.statement(node)
}

func (c *converter) statement(node *sitter.Node) []Node {
	if node == nil {
		return nil
	}

	switch node.Type() {
	case "comment", "php_tag", "text_interpolation", "text", "empty_statement",
		"namespace_use_declaration", "declare_statement", "unset_statement",
		"static_variable_declaration", "named_label_statement", "goto_statement":
		return nil

	case "compound_statement", "colon_block":
		return c.statements(node)

	case "namespace_definition":
		return c.statements(node.ChildByFieldName("body"))

	case "expression_statement":
		expr := c.firstNamed(node)
		if expr == nil {
			return nil
		}
		if expr.Type() == "throw_expression" {
			return []Node{&Throw{Pos: pos(node), Expr: c.expr(c.firstNamed(expr))}}
		}
		return []Node{c.expr(expr)}

	case "if_statement":
		return []Node{c.ifStatement(node)}
	case "switch_statement":
		return []Node{c.switchStatement(node)}
	case "while_statement":
		return []Node{&While{
			Pos:  pos(node),
			Cond: c.expr(node.ChildByFieldName("condition")),
			Body: c.body(node.ChildByFieldName("body")),
		}}
	case "do_statement":
		return []Node{&DoWhile{
			Pos:  pos(node),
			Cond: c.expr(node.ChildByFieldName("condition")),
			Body: c.body(node.ChildByFieldName("body")),
		}}
	case "for_statement":
		return []Node{c.forStatement(node)}
	case "foreach_statement":
		return []Node{c.foreachStatement(node)}
	case "try_statement":
		return []Node{c.tryStatement(node)}

	case "return_statement":
		ret := &Return{Pos: pos(node)}
		if expr := c.firstNamed(node); expr != nil {
			ret.Expr = c.expr(expr)
		}
		return []Node{ret}
	case "throw_statement", "throw_expression":
		return []Node{&Throw{Pos: pos(node), Expr: c.expr(c.firstNamed(node))}}
	case "break_statement":
		return []Node{&Break{Pos: pos(node)}}
	case "continue_statement":
		return []Node{&Continue{Pos: pos(node)}}

	case "echo_statement":
		var args []Node
		for i := 0; i < int(node.NamedChildCount()); i++ {
			args = append(args, c.flatten(node.NamedChild(i))...)
		}
		return []Node{&Call{Pos: pos(node), Kind: CallConstruct, Name: "echo", Args: args}}

	case "global_declaration":
		g := &Global{Pos: pos(node)}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "comment" {
				continue
			}
			g.Vars = append(g.Vars, c.expr(child))
		}
		return []Node{g}

	case "const_declaration":
		return []Node{c.constDeclaration(node)}

	case "function_definition":
		return []Node{c.functionDeclaration(node, "")}

	case "class_declaration", "trait_declaration", "interface_declaration", "enum_declaration":
		return []Node{c.classDeclaration(node)}
	}

	return []Node{c.expr(node)}
}

func (c *converter) ifStatement(node *sitter.Node) *If {
	stmt := &If{
		Pos:  pos(node),
		Cond: c.expr(node.ChildByFieldName("condition")),
		Body: c.body(node.ChildByFieldName("body")),
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "else_if_clause":
			stmt.ElseIfs = append(stmt.ElseIfs, &ElseIf{
				Pos:  pos(child),
				Cond: c.expr(child.ChildByFieldName("condition")),
				Body: c.body(child.ChildByFieldName("body")),
			})
		case "else_clause":
			stmt.Else = &Else{Pos: pos(child), Body: c.body(child.ChildByFieldName("body"))}
		}
	}
	return stmt
}

func (c *converter) switchStatement(node *sitter.Node) *Switch {
	stmt := &Switch{Pos: pos(node), Cond: c.expr(node.ChildByFieldName("condition"))}
	block := node.ChildByFieldName("body")
	if block == nil {
		return stmt
	}
	for i := 0; i < int(block.NamedChildCount()); i++ {
		child := block.NamedChild(i)
		switch child.Type() {
		case "case_statement":
			cs := &Case{Pos: pos(child)}
			first := true
			for j := 0; j < int(child.NamedChildCount()); j++ {
				part := child.NamedChild(j)
				if part.Type() == "comment" {
					continue
				}
				if first {
					cs.Cond = c.expr(part)
					first = false
					continue
				}
				cs.Body = append(cs.Body, c.statement(part)...)
			}
			stmt.Cases = append(stmt.Cases, cs)
		case "default_statement":
			stmt.Cases = append(stmt.Cases, &Case{Pos: pos(child), Body: c.statements(child)})
		}
	}
	return stmt
}

// forStatement splits the header by its ';' tokens, since the init, condition
// and update sections are each optional.
func (c *converter) forStatement(node *sitter.Node) *For {
	stmt := &For{Pos: pos(node)}
	section := 0
	inHeader := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if !child.IsNamed() {
			switch c.nodeText(child) {
			case "(":
				if section == 0 {
					inHeader = true
				}
			case ";":
				if inHeader {
					section++
				}
			case ")":
				inHeader = false
				section = 3
			}
			continue
		}
		if child.Type() == "comment" {
			continue
		}
		switch {
		case inHeader && section == 0:
			stmt.Init = append(stmt.Init, c.flatten(child)...)
		case inHeader && section == 1:
			stmt.Cond = append(stmt.Cond, c.flatten(child)...)
		case inHeader && section == 2:
			stmt.Loop = append(stmt.Loop, c.flatten(child)...)
		case section == 3:
			stmt.Body = append(stmt.Body, c.body(child)...)
		}
	}
	return stmt
}

func (c *converter) foreachStatement(node *sitter.Node) *Foreach {
	stmt := &Foreach{Pos: pos(node)}
	const (
		beforeAs = iota
		afterAs
		inBody
	)
	state := beforeAs
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if !child.IsNamed() {
			switch strings.ToLower(c.nodeText(child)) {
			case "as":
				state = afterAs
			case ")":
				state = inBody
			}
			continue
		}
		if child.Type() == "comment" {
			continue
		}
		switch state {
		case beforeAs:
			if stmt.Expr == nil {
				stmt.Expr = c.expr(child)
			}
		case afterAs:
			if child.Type() == "pair" && child.NamedChildCount() >= 2 {
				stmt.Key = c.expr(child.NamedChild(0))
				stmt.Value = c.expr(child.NamedChild(int(child.NamedChildCount()) - 1))
			} else {
				stmt.Value = c.expr(child)
			}
		case inBody:
			stmt.Body = append(stmt.Body, c.body(child)...)
		}
	}
	return stmt
}

func (c *converter) tryStatement(node *sitter.Node) *TryCatch {
	stmt := &TryCatch{Pos: pos(node), Body: c.body(node.ChildByFieldName("body"))}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "catch_clause":
			catch := &Catch{Pos: pos(child), Body: c.body(child.ChildByFieldName("body"))}
			if typeNode := child.ChildByFieldName("type"); typeNode != nil {
				named := typeNode
				if typeNode.NamedChildCount() > 0 {
					named = typeNode.NamedChild(0)
				}
				catch.Type = &ConstFetch{Pos: pos(named), Name: shortName(c.nodeText(named))}
			}
			if varNode := child.ChildByFieldName("name"); varNode != nil {
				catch.Var = strings.TrimPrefix(c.nodeText(varNode), "$")
			}
			stmt.Catches = append(stmt.Catches, catch)
		case "finally_clause":
			stmt.Finally = c.body(child.ChildByFieldName("body"))
		}
	}
	return stmt
}

func (c *converter) constDeclaration(node *sitter.Node) *ConstDecl {
	decl := &ConstDecl{Pos: pos(node)}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		elem := node.NamedChild(i)
		if elem.Type() != "const_element" || elem.NamedChildCount() == 0 {
			continue
		}
		last := elem.NamedChild(int(elem.NamedChildCount()) - 1)
		decl.Consts = append(decl.Consts, ConstElem{
			Name:  c.nodeText(elem.NamedChild(0)),
			Value: c.expr(last),
		})
	}
	return decl
}

func (c *converter) functionDeclaration(node *sitter.Node, class string) *FunctionDecl {
	fn := &FunctionDecl{
		Pos:   pos(node),
		Name:  c.nodeText(node.ChildByFieldName("name")),
		Class: class,
		Body:  c.body(node.ChildByFieldName("body")),
	}
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return fn
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		switch param.Type() {
		case "simple_parameter", "variadic_parameter", "property_promotion_parameter":
		default:
			continue
		}
		nameNode := param.ChildByFieldName("name")
		if nameNode == nil {
			nameNode = c.findChildByType(param, "variable_name")
		}
		if nameNode == nil {
			continue
		}
		fn.Params = append(fn.Params, &Param{
			Pos:  pos(param),
			Name: strings.TrimPrefix(c.nodeText(nameNode), "$"),
		})
	}
	return fn
}

func (c *converter) classDeclaration(node *sitter.Node) *ClassDecl {
	class := &ClassDecl{Pos: pos(node), Name: c.nodeText(node.ChildByFieldName("name"))}
	body := node.ChildByFieldName("body")
	if body == nil {
		return class
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() == "method_declaration" {
			class.Methods = append(class.Methods, c.functionDeclaration(child, class.Name))
		}
	}
	return class
}

// flatten expands comma sequences (for headers, echo arguments) into a list.
func (c *converter) flatten(node *sitter.Node) []Node {
	if node == nil || node.Type() == "comment" {
		return nil
	}
	if node.Type() == "sequence_expression" {
		var out []Node
		for i := 0; i < int(node.NamedChildCount()); i++ {
			out = append(out, c.flatten(node.NamedChild(i))...)
		}
		return out
	}
	return []Node{c.expr(node)}
}

func (c *converter) expr(node *sitter.Node) Node {
	if node == nil {
		return nil
	}
	p := pos(node)

	switch node.Type() {
	case "parenthesized_expression", "argument":
		return c.expr(c.lastNamed(node))

	case "variable_name":
		return &Variable{Pos: p, Name: strings.TrimPrefix(c.nodeText(node), "$")}
	case "dynamic_variable_name":
		return &Variable{Pos: p, Dynamic: true}
	case "by_ref":
		return c.expr(c.firstNamed(node))

	case "subscript_expression":
		fetch := &ArrayDimFetch{Pos: p, Var: c.expr(node.NamedChild(0))}
		if node.NamedChildCount() > 1 {
			fetch.Dim = c.expr(node.NamedChild(1))
		}
		return fetch
	case "member_access_expression", "nullsafe_member_access_expression":
		return &PropertyFetch{
			Pos:  p,
			Var:  c.expr(node.ChildByFieldName("object")),
			Name: strings.TrimPrefix(c.nodeText(node.ChildByFieldName("name")), "$"),
		}
	case "scoped_property_access_expression":
		return &PropertyFetch{
			Pos:  p,
			Var:  c.expr(node.ChildByFieldName("scope")),
			Name: strings.TrimPrefix(c.nodeText(node.ChildByFieldName("name")), "$"),
		}

	case "string", "encapsed_string", "heredoc", "nowdoc", "shell_command_expression":
		return c.stringExpr(node)
	case "integer", "float":
		return &Literal{Pos: p, Kind: LiteralNumber, Value: c.nodeText(node)}
	case "boolean":
		return &Literal{Pos: p, Kind: LiteralBool, Value: strings.ToLower(c.nodeText(node))}
	case "null":
		return &Literal{Pos: p, Kind: LiteralNull, Value: "null"}
	case "name", "qualified_name", "class_constant_access_expression":
		return &ConstFetch{Pos: p, Name: c.nodeText(node)}

	case "binary_expression":
		left := c.expr(node.ChildByFieldName("left"))
		right := c.expr(node.ChildByFieldName("right"))
		switch op := c.operator(node); op {
		case ".":
			return &Concat{Pos: p, Left: left, Right: right}
		case "or", "||":
			return &LogicalOr{Pos: p, Left: left, Right: right}
		default:
			return &BinaryOp{Pos: p, Op: op, Left: left, Right: right}
		}
	case "conditional_expression":
		return &Ternary{
			Pos:  p,
			Cond: c.expr(node.ChildByFieldName("condition")),
			Then: c.expr(node.ChildByFieldName("body")),
			Else: c.expr(node.ChildByFieldName("alternative")),
		}
	case "assignment_expression", "reference_assignment_expression":
		return &Assign{
			Pos:  p,
			Var:  c.expr(node.ChildByFieldName("left")),
			Expr: c.expr(node.ChildByFieldName("right")),
		}
	case "augmented_assignment_expression":
		return &AssignOp{
			Pos:  p,
			Op:   strings.TrimSuffix(c.operator(node), "="),
			Var:  c.expr(node.ChildByFieldName("left")),
			Expr: c.expr(node.ChildByFieldName("right")),
		}
	case "cast_expression":
		typeNode := node.ChildByFieldName("type")
		valueNode := node.ChildByFieldName("value")
		if valueNode == nil {
			valueNode = c.lastNamed(node)
		}
		return &Cast{Pos: p, Type: strings.ToLower(strings.TrimSpace(c.nodeText(typeNode))), Expr: c.expr(valueNode)}

	case "function_call_expression":
		call := &Call{Pos: p, Kind: CallFunction, Args: c.arguments(node.ChildByFieldName("arguments"))}
		fn := node.ChildByFieldName("function")
		if fn != nil && (fn.Type() == "name" || fn.Type() == "qualified_name") {
			call.Name = shortName(c.nodeText(fn))
		} else {
			call.Receiver = c.expr(fn)
		}
		return call
	case "member_call_expression", "nullsafe_member_call_expression":
		call := &Call{
			Pos:      p,
			Kind:     CallMethod,
			Receiver: c.expr(node.ChildByFieldName("object")),
			Args:     c.arguments(node.ChildByFieldName("arguments")),
		}
		if name := node.ChildByFieldName("name"); name != nil && name.Type() == "name" {
			call.Name = c.nodeText(name)
		}
		return call
	case "scoped_call_expression":
		scope := node.ChildByFieldName("scope")
		call := &Call{
			Pos:      p,
			Kind:     CallStatic,
			Receiver: c.expr(scope),
			Args:     c.arguments(node.ChildByFieldName("arguments")),
		}
		if name := node.ChildByFieldName("name"); name != nil && name.Type() == "name" {
			call.Name = shortName(c.nodeText(scope)) + "::" + c.nodeText(name)
		}
		return call
	case "print_intrinsic":
		return &Call{Pos: p, Kind: CallConstruct, Name: "print", Args: c.flatten(c.firstNamed(node))}
	case "include_expression", "include_once_expression", "require_expression", "require_once_expression":
		name := strings.TrimSuffix(node.Type(), "_expression")
		return &Call{Pos: p, Kind: CallConstruct, Name: name, Args: c.flatten(c.firstNamed(node))}
	case "exit_statement":
		return &Call{Pos: p, Kind: CallConstruct, Name: "exit", Args: c.flatten(c.firstNamed(node))}

	case "anonymous_function_creation_expression", "anonymous_function", "arrow_function":
		return &Unknown{Pos: p, Kind: node.Type()}
	}

	unknown := &Unknown{Pos: p, Kind: node.Type()}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		unknown.Children = append(unknown.Children, c.expr(child))
	}
	return unknown
}

func (c *converter) arguments(node *sitter.Node) []Node {
	if node == nil {
		return nil
	}
	var args []Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "comment", "variadic_placeholder":
			continue
		}
		args = append(args, c.expr(child))
	}
	return args
}

// stringExpr turns string literals into Literal nodes and interpolated
// strings into a left-nested Concat chain.
func (c *converter) stringExpr(node *sitter.Node) Node {
	p := pos(node)
	container := node
	if body := c.findChildByType(node, "heredoc_body"); body != nil {
		container = body
	} else if body := c.findChildByType(node, "nowdoc_body"); body != nil {
		container = body
	}

	var parts []Node
	var pending strings.Builder
	hasPending := false
	interpolated := false
	for i := 0; i < int(container.NamedChildCount()); i++ {
		child := container.NamedChild(i)
		switch child.Type() {
		case "string_content", "string_value", "escape_sequence", "nowdoc_string",
			"heredoc_start", "heredoc_end":
			if child.Type() == "heredoc_start" || child.Type() == "heredoc_end" {
				continue
			}
			pending.WriteString(c.nodeText(child))
			hasPending = true
		default:
			interpolated = true
			if hasPending {
				parts = append(parts, &Literal{Pos: p, Kind: LiteralString, Value: pending.String()})
				pending.Reset()
				hasPending = false
			}
			parts = append(parts, c.expr(child))
		}
	}
	if !interpolated {
		return &Literal{Pos: p, Kind: LiteralString, Value: unquote(c.nodeText(node))}
	}
	if hasPending {
		parts = append(parts, &Literal{Pos: p, Kind: LiteralString, Value: pending.String()})
	}

	result := parts[0]
	for _, part := range parts[1:] {
		result = &Concat{Pos: p, Left: result, Right: part}
	}
	return result
}

// operator returns the operator token of a binary-like node.
func (c *converter) operator(node *sitter.Node) string {
	if op := node.ChildByFieldName("operator"); op != nil {
		return strings.ToLower(c.nodeText(op))
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && !child.IsNamed() {
			return strings.ToLower(c.nodeText(child))
		}
	}
	return ""
}

func (c *converter) firstNamed(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "comment" {
			return child
		}
	}
	return nil
}

func (c *converter) lastNamed(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
		child := node.NamedChild(i)
		if child.Type() != "comment" {
			return child
		}
	}
	return nil
}

func (c *converter) findChildByType(node *sitter.Node, childType string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && child.Type() == childType {
			return child
		}
	}
	return nil
}

// shortName strips a namespace qualifier: \App\Db\query -> query.
func shortName(name string) string {
	name = strings.TrimPrefix(name, "\\")
	if idx := strings.LastIndex(name, "\\"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func unquote(s string) string {
	if len(s) >= 3 && (s[0] == 'b' || s[0] == 'B') && (s[1] == '\'' || s[1] == '"') {
		s = s[1:]
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
